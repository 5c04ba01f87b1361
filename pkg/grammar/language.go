package grammar

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language is the closed set of languages the unified AST layer supports.
// Adding a language means adding a variant here, a grammar binding in
// registerBuiltins and a packs/<name>/pack.json.
type Language int

const (
	Rust Language = iota + 1
	TypeScript
	Python
	Go
	JavaScript
	Java
)

// Languages lists every supported language in declaration order.
var Languages = []Language{Rust, TypeScript, Python, Go, JavaScript, Java}

// String returns the canonical lowercase name, which is also the pack name.
func (l Language) String() string {
	switch l {
	case Rust:
		return "rust"
	case TypeScript:
		return "typescript"
	case Python:
		return "python"
	case Go:
		return "go"
	case JavaScript:
		return "javascript"
	case Java:
		return "java"
	default:
		return fmt.Sprintf("language(%d)", int(l))
	}
}

// DisplayName returns the human-facing name used in log lines.
func (l Language) DisplayName() string {
	switch l {
	case Rust:
		return "Rust"
	case TypeScript:
		return "TypeScript"
	case Python:
		return "Python"
	case Go:
		return "Go"
	case JavaScript:
		return "JavaScript"
	case Java:
		return "Java"
	default:
		return l.String()
	}
}

// Valid reports whether l is one of the declared variants.
func (l Language) Valid() bool {
	return l >= Rust && l <= Java
}

func (l Language) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid language %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Language) UnmarshalText(text []byte) error {
	parsed, ok := ParseLanguage(string(text))
	if !ok {
		return fmt.Errorf("unknown language %q", string(text))
	}
	*l = parsed
	return nil
}

// ParseLanguage resolves a canonical name or pack alias ("rs", "golang", ...).
func ParseLanguage(s string) (Language, bool) {
	name := DefaultPackRegistry().NormaliseLang(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range Languages {
		if l.String() == name {
			return l, true
		}
	}
	return 0, false
}

// FromExtension maps a file extension to a language. Matching is
// case-insensitive and the leading dot is optional. An unknown extension is
// not an error: it returns false.
func FromExtension(ext string) (Language, bool) {
	ext = strings.ToLower(ext)
	if ext == "" {
		return 0, false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := DefaultPackRegistry().LangForExtension(ext)
	if !ok {
		return 0, false
	}
	return ParseLanguage(name)
}

// FromPath maps a file path to a language via its extension.
func FromPath(path string) (Language, bool) {
	return FromExtension(filepath.Ext(path))
}
