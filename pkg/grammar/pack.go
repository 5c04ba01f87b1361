package grammar

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

//go:embed packs/*/pack.json
var embeddedPacks embed.FS

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *PackRegistry
	errDefaultRegistry  error
)

// DefaultPackRegistry returns a lazily-initialised singleton PackRegistry
// pre-loaded with all embedded packs. It is safe for concurrent use.
func DefaultPackRegistry() *PackRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry, errDefaultRegistry = NewPackRegistry()
		if errDefaultRegistry != nil {
			// Embedded data is compiled in; an empty registry keeps lookups
			// answering "unsupported" instead of panicking.
			defaultRegistry = newEmptyRegistry()
		}
	})
	return defaultRegistry
}

// Pack is the in-memory representation of a pack.json file: file detection
// metadata plus the node-kind allow-lists used by extraction. Allow-lists are
// tied to GrammarVersion, so a grammar upgrade is a data change here.
type Pack struct {
	SchemaVersion  int        `json:"schema_version"`
	Name           string     `json:"name"`
	GrammarVersion string     `json:"grammar_version"`
	Meta           PackMeta   `json:"meta"`
	Extraction     Extraction `json:"extraction"`
}

// PackMeta holds file-detection metadata for a language.
type PackMeta struct {
	Extensions []string `json:"extensions"`
	Aliases    []string `json:"aliases,omitempty"`
}

// Extraction holds the per-category allow-lists for a language.
type Extraction struct {
	Functions Rule `json:"functions"`
	Variables Rule `json:"variables"`
	Structs   Rule `json:"structs"`

	// Mutability of variable declarations: a child of one of MutableKinds
	// (e.g. Rust mutable_specifier) or a keyword child in MutableKeywords
	// (e.g. "let"/"var") marks a declaration mutable. DefaultMutable applies
	// to languages without immutable bindings.
	MutableKinds    []string `json:"mutable_kinds,omitempty"`
	MutableKeywords []string `json:"mutable_keywords,omitempty"`
	DefaultMutable  bool     `json:"default_mutable,omitempty"`
}

// Rule is one allow-list: which node kinds qualify and which child kinds
// carry the name.
type Rule struct {
	NodeKinds []string `json:"node_kinds"`
	NameKinds []string `json:"name_kinds"`
}

// Matches reports whether kind is in the allow-list.
func (r Rule) Matches(kind string) bool {
	return slices.Contains(r.NodeKinds, kind)
}

// IsName reports whether a child of this kind names the declaration.
func (r Rule) IsName(kind string) bool {
	return slices.Contains(r.NameKinds, kind)
}

// PackRegistry holds loaded pack metadata for all known languages.
type PackRegistry struct {
	mu    sync.RWMutex
	packs map[string]*Pack

	extLookup   map[string]string // extension -> language name
	aliasLookup map[string]string // alias -> language name
}

func newEmptyRegistry() *PackRegistry {
	return &PackRegistry{
		packs:       make(map[string]*Pack),
		extLookup:   make(map[string]string),
		aliasLookup: make(map[string]string),
	}
}

// NewPackRegistry creates a PackRegistry pre-loaded with all embedded packs.
func NewPackRegistry() (*PackRegistry, error) {
	r := newEmptyRegistry()

	err := fs.WalkDir(embeddedPacks, "packs", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "pack.json" {
			return nil
		}
		data, readErr := embeddedPacks.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("reading embedded pack %s: %w", path, readErr)
		}
		pack, parseErr := parsePack(data)
		if parseErr != nil {
			return fmt.Errorf("parsing embedded pack %s: %w", path, parseErr)
		}
		r.register(pack)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading embedded packs: %w", err)
	}

	return r, nil
}

// LoadFromDir loads a pack.json from a directory. An on-disk pack replaces
// the embedded pack of the same name, which is how allow-lists are updated
// for a newer grammar without a rebuild.
func (r *PackRegistry) LoadFromDir(dir string) error {
	packPath := filepath.Join(dir, "pack.json")
	data, err := os.ReadFile(packPath)
	if err != nil {
		return err
	}
	pack, err := parsePack(data)
	if err != nil {
		return fmt.Errorf("parsing pack %s: %w", packPath, err)
	}
	r.register(pack)
	return nil
}

func parsePack(data []byte) (*Pack, error) {
	var pack Pack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, err
	}
	if pack.Name == "" {
		return nil, fmt.Errorf("pack has no name")
	}
	if _, ok := languageByName(pack.Name); !ok {
		return nil, fmt.Errorf("pack %q does not match a supported language", pack.Name)
	}
	return &pack, nil
}

func languageByName(name string) (Language, bool) {
	for _, l := range Languages {
		if l.String() == name {
			return l, true
		}
	}
	return 0, false
}

// Get returns the pack for the given language, or nil if none is loaded.
func (r *PackRegistry) Get(lang Language) *Pack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.packs[lang.String()]
}

// LangForExtension returns the language name for a file extension (e.g., ".go" -> "go").
func (r *PackRegistry) LangForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.extLookup[ext]
	return lang, ok
}

// NormaliseLang converts a language alias to its canonical name.
// Returns the input unchanged if no alias is found.
func (r *PackRegistry) NormaliseLang(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliasLookup[s]; ok {
		return canonical
	}
	return s
}

func (r *PackRegistry) register(pack *Pack) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.packs[pack.Name]; ok {
		for _, ext := range old.Meta.Extensions {
			delete(r.extLookup, ext)
		}
		for _, alias := range old.Meta.Aliases {
			delete(r.aliasLookup, alias)
		}
	}
	r.packs[pack.Name] = pack

	for _, ext := range pack.Meta.Extensions {
		r.extLookup[ext] = pack.Name
	}
	for _, alias := range pack.Meta.Aliases {
		r.aliasLookup[alias] = pack.Name
	}
}
