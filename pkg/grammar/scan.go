package grammar

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/jmylchreest/uast/pkg/ignore"
)

// ScanResult describes the supported source files found under a directory.
type ScanResult struct {
	// Languages maps each language to the number of files found.
	Languages map[Language]int
	// TotalFiles is the total number of recognised source files scanned.
	TotalFiles int
}

// LanguageCount is one row of a scan, see ScanResult.Sorted.
type LanguageCount struct {
	Language Language `json:"language"`
	Files    int      `json:"files"`
}

// ScanProject walks root and counts files per language, skipping what
// matcher ignores (nil means the built-in defaults).
func ScanProject(root string, matcher *ignore.Matcher) (*ScanResult, error) {
	if matcher == nil {
		matcher = ignore.NewFromDefaults()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	shouldSkip := matcher.WalkFunc(absRoot)

	result := &ScanResult{Languages: make(map[Language]int)}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if skip, skipDir := shouldSkip(path, d.IsDir()); skip {
			if skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lang, ok := FromPath(path)
		if !ok {
			return nil
		}
		result.Languages[lang]++
		result.TotalFiles++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sorted returns the per-language counts, most files first. Ties keep the
// Languages order.
func (r *ScanResult) Sorted() []LanguageCount {
	out := make([]LanguageCount, 0, len(r.Languages))
	for _, l := range Languages {
		if n := r.Languages[l]; n > 0 {
			out = append(out, LanguageCount{Language: l, Files: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Files > out[j].Files
	})
	return out
}
