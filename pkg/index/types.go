// Package index persists extracted records across a project so they can be
// searched by name without re-parsing. Records live in bbolt; a bleve index
// over the names serves prefix and substring search.
package index

import (
	"time"
)

// Symbol is one extracted record as stored in the index.
type Symbol struct {
	ID        string    `json:"id"`        // ULID
	Name      string    `json:"name"`      // e.g. "getUser"
	Kind      string    `json:"kind"`      // function, variable, struct
	Signature string    `json:"signature"` // first line of the declaration, collapsed
	FilePath  string    `json:"file"`      // slash-separated, relative to the project root
	StartByte uint      `json:"startByte"`
	EndByte   uint      `json:"endByte"`
	StartLine int       `json:"start"` // 1-indexed
	EndLine   int       `json:"end"`   // 1-indexed
	Mutable   bool      `json:"mutable,omitempty"`
	Async     bool      `json:"async,omitempty"`
	Language  string    `json:"lang"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileInfo tracks an indexed file for incremental updates.
type FileInfo struct {
	Path      string    `json:"path"`
	Language  string    `json:"lang"`
	ModTime   time.Time `json:"modTime"`
	SymbolIDs []string  `json:"symbols"`
	Skipped   int       `json:"skipped,omitempty"` // allow-listed nodes without a resolvable name
}

// SearchOptions filters symbol searches.
type SearchOptions struct {
	Kind     string // exact kind
	Language string // exact language name
	FilePath string // substring of the file path
	Limit    int    // max results (0 = default)
}

// SearchResult is a symbol search match with its score.
type SearchResult struct {
	Symbol *Symbol `json:"symbol"`
	Score  float64 `json:"score"`
}

// Stats contains index statistics.
type Stats struct {
	Files   int `json:"files"`
	Symbols int `json:"symbols"`
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	Paths         []string      // directories to watch (empty = project root)
	DebounceDelay time.Duration // quiet period before a batch is flushed
}

// DefaultDebounceDelay applies when WatcherConfig leaves the delay unset.
const DefaultDebounceDelay = 2 * time.Second
