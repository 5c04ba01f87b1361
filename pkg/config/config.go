// Package config loads uast settings from built-in defaults, an optional
// .uast/config.json in the project root, and UAST_* environment variables,
// in that order of precedence (later wins).
//
// Environment keys map onto config keys by dropping the prefix, lowercasing,
// and turning "__" into a nesting dot:
//
//	UAST_INDEX__WORKERS=4        -> index.workers
//	UAST_WATCH__DEBOUNCE=500ms   -> watch.debounce
//	UAST_IGNORE__PATTERNS=a/,*.x -> ignore.patterns
//	UAST_PACKS__DIRS=packs/rust  -> packs.dirs
//	UAST_DEBUG=1                 -> debug
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// DirName is the per-project state directory.
	DirName = ".uast"
	// FileName is the config file inside DirName.
	FileName = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "UAST_"

	DefaultMaxFileBytes = 1 << 20
	DefaultDebounce     = 2 * time.Second
	DefaultSearchLimit  = 20
)

// Config is the resolved configuration.
type Config struct {
	Index  IndexConfig  `koanf:"index"`
	Watch  WatchConfig  `koanf:"watch"`
	Ignore IgnoreConfig `koanf:"ignore"`
	Search SearchConfig `koanf:"search"`
	Packs  PacksConfig  `koanf:"packs"`
	Debug  bool         `koanf:"debug"`
}

// IndexConfig controls the symbol index.
type IndexConfig struct {
	Dir          string `koanf:"dir"`            // relative paths resolve against the project root
	Workers      int    `koanf:"workers"`        // parse workers; each holds its own parser set
	MaxFileBytes int64  `koanf:"max_file_bytes"` // larger files are skipped
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
	Paths    []string      `koanf:"paths"`
}

// IgnoreConfig adds ignore patterns on top of the built-in defaults.
type IgnoreConfig struct {
	Patterns []string `koanf:"patterns"`
}

// PacksConfig lists directories holding pack.json overrides. A pack found
// there replaces the embedded allow-lists for its language.
type PacksConfig struct {
	Dirs []string `koanf:"dirs"`
}

// SearchConfig controls symbol search.
type SearchConfig struct {
	Limit int `koanf:"limit"`
}

func defaults() map[string]any {
	return map[string]any{
		"index.dir":            DirName,
		"index.workers":        runtime.NumCPU(),
		"index.max_file_bytes": DefaultMaxFileBytes,
		"watch.debounce":       DefaultDebounce.String(),
		"watch.paths":          []string{},
		"ignore.patterns":      []string{},
		"search.limit":         DefaultSearchLimit,
		"packs.dirs":           []string{},
		"debug":                false,
	}
}

// Load resolves the configuration for projectRoot.
func Load(projectRoot string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := Path(projectRoot)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise(projectRoot)
	return &cfg, nil
}

// Path returns the config file location for projectRoot.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, DirName, FileName)
}

// transformEnv maps UAST_INDEX__MAX_FILE_BYTES to index.max_file_bytes.
// Comma-separated values become lists.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

func (c *Config) normalise(projectRoot string) {
	if c.Index.Dir == "" {
		c.Index.Dir = DirName
	}
	if !filepath.IsAbs(c.Index.Dir) {
		c.Index.Dir = filepath.Join(projectRoot, c.Index.Dir)
	}
	if c.Index.Workers < 1 {
		c.Index.Workers = 1
	}
	if c.Index.MaxFileBytes <= 0 {
		c.Index.MaxFileBytes = DefaultMaxFileBytes
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	for i, dir := range c.Packs.Dirs {
		if !filepath.IsAbs(dir) {
			c.Packs.Dirs[i] = filepath.Join(projectRoot, dir)
		}
	}
	if c.Search.Limit < 1 {
		c.Search.Limit = DefaultSearchLimit
	}
}

// StorePath is the bbolt file inside the index directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.Index.Dir, "index.db")
}

// SearchPath is the bleve index directory inside the index directory.
func (c *Config) SearchPath() string {
	return filepath.Join(c.Index.Dir, "search.bleve")
}
