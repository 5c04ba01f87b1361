package index

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
var (
	BucketSymbols = []byte("symbols")
	BucketFiles   = []byte("files")
	BucketMeta    = []byte("meta")
)

var keyMappingHash = []byte("search_mapping_hash")

// ErrNotFound is returned when a symbol or file is not in the index.
var ErrNotFound = errors.New("not found")

// Store provides symbol storage and search.
type Store struct {
	db         *bolt.DB
	search     bleve.Index
	searchPath string
}

// NewStore opens (or creates) the index.
// dbPath: path to the bbolt database (e.g. .uast/index.db)
// searchPath: path to the bleve index (e.g. .uast/search.bleve)
func NewStore(dbPath, searchPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(searchPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create search directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketSymbols, BucketFiles, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	index, err := openOrCreateSearchIndex(searchPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create/open search index: %w", err)
	}

	s := &Store{db: db, search: index, searchPath: searchPath}
	if err := s.ensureSearchMapping(); err != nil {
		index.Close()
		db.Close()
		return nil, fmt.Errorf("search mapping check failed: %w", err)
	}
	return s, nil
}

// openOrCreateSearchIndex opens an existing search index, recreating it from
// scratch if it is corrupted.
func openOrCreateSearchIndex(path string) (bleve.Index, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return createSearchIndex(path)
	}

	index, err := bleve.Open(path)
	if err == nil {
		return index, nil
	}

	log.Printf("[uast:index] search index corrupted at %s (%v), rebuilding", path, err)
	if removeErr := os.RemoveAll(path); removeErr != nil {
		return nil, fmt.Errorf("failed to remove corrupted search index: %w (original error: %v)", removeErr, err)
	}
	return createSearchIndex(path)
}

func createSearchIndex(path string) (bleve.Index, error) {
	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(path, indexMapping)
}

// buildIndexMapping creates the mapping for symbol search.
func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, err
	}

	// Edge n-grams for prefix matching (get -> getUser)
	err = indexMapping.AddCustomTokenFilter("edge_ngram_filter", map[string]interface{}{
		"type": edgengram.Name,
		"min":  2.0,
		"max":  15.0,
	})
	if err != nil {
		return nil, err
	}

	err = indexMapping.AddCustomAnalyzer("edge_ngram", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			"edge_ngram_filter",
		},
	})
	if err != nil {
		return nil, err
	}

	symbolMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = "standard_lower"
	nameField.Store = true
	symbolMapping.AddFieldMappingsAt("name", nameField)

	nameEdgeField := bleve.NewTextFieldMapping()
	nameEdgeField.Analyzer = "edge_ngram"
	nameEdgeField.Store = false
	nameEdgeField.IncludeInAll = false
	symbolMapping.AddFieldMappingsAt("name_edge", nameEdgeField)

	sigField := bleve.NewTextFieldMapping()
	sigField.Analyzer = "standard_lower"
	sigField.Store = true
	symbolMapping.AddFieldMappingsAt("signature", sigField)

	for _, name := range []string{"kind", "lang", "file"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		symbolMapping.AddFieldMappingsAt(name, f)
	}

	indexMapping.AddDocumentMapping("symbol", symbolMapping)
	indexMapping.DefaultMapping = symbolMapping

	return indexMapping, nil
}

// MappingHash returns a stable fingerprint of an index mapping, so a changed
// mapping can be detected on open.
func MappingHash(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		// Empty forces a rebuild.
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

func searchDoc(sym *Symbol) map[string]interface{} {
	return map[string]interface{}{
		"name":      sym.Name,
		"name_edge": sym.Name,
		"signature": sym.Signature,
		"kind":      sym.Kind,
		"lang":      sym.Language,
		"file":      sym.FilePath,
	}
}

// ensureSearchMapping rebuilds the search index from bbolt when the mapping
// stored in the meta bucket differs from the current one.
func (s *Store) ensureSearchMapping() error {
	m, err := buildIndexMapping()
	if err != nil {
		return err
	}
	hash := MappingHash(m)

	var stored string
	s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(BucketMeta).Get(keyMappingHash); data != nil {
			stored = string(data)
		}
		return nil
	})

	if hash == stored {
		return nil
	}
	if stored != "" {
		log.Printf("[uast:index] search mapping changed, rebuilding index")
	}

	if err := s.resetSearch(); err != nil {
		return err
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketSymbols).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sym Symbol
			if err := json.Unmarshal(v, &sym); err != nil {
				continue
			}
			if err := s.search.Index(sym.ID, searchDoc(&sym)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketMeta).Put(keyMappingHash, []byte(hash))
	})
}

// resetSearch drops and recreates the bleve index.
func (s *Store) resetSearch() error {
	if s.search != nil {
		s.search.Close()
	}
	os.RemoveAll(s.searchPath)

	index, err := createSearchIndex(s.searchPath)
	if err != nil {
		return err
	}
	s.search = index
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.search != nil {
		s.search.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AddSymbol stores a symbol and indexes it for search.
func (s *Store) AddSymbol(sym *Symbol) error {
	if sym.ID == "" {
		sym.ID = ulid.Make().String()
	}
	if sym.CreatedAt.IsZero() {
		sym.CreatedAt = time.Now()
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sym)
		if err != nil {
			return err
		}
		return tx.Bucket(BucketSymbols).Put([]byte(sym.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store symbol: %w", err)
	}

	if err := s.search.Index(sym.ID, searchDoc(sym)); err != nil {
		return fmt.Errorf("failed to index symbol: %w", err)
	}
	return nil
}

// GetSymbol retrieves a symbol by ID.
func (s *Store) GetSymbol(id string) (*Symbol, error) {
	var sym Symbol
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketSymbols).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &sym)
	})
	if err != nil {
		return nil, err
	}
	return &sym, nil
}

// DeleteSymbol removes a symbol by ID.
func (s *Store) DeleteSymbol(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketSymbols).Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	return s.search.Delete(id)
}

// SearchSymbols finds symbols whose name starts with or contains query, or
// whose signature mentions it.
func (s *Store) SearchSymbols(query string, opts SearchOptions) ([]*SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	lowerQuery := strings.ToLower(query)

	prefixQuery := bleve.NewPrefixQuery(lowerQuery)
	prefixQuery.SetField("name")

	edgeQuery := bleve.NewTermQuery(lowerQuery)
	edgeQuery.SetField("name_edge")

	wildcardQuery := bleve.NewWildcardQuery("*" + lowerQuery + "*")
	wildcardQuery.SetField("name")

	sigQuery := bleve.NewMatchQuery(query)
	sigQuery.SetField("signature")

	q := bleve.NewDisjunctionQuery(prefixQuery, edgeQuery, wildcardQuery, sigQuery)

	req := bleve.NewSearchRequest(q)
	// Filters run after the search, so over-fetch.
	req.Size = limit * 4

	res, err := s.search.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		sym, err := s.GetSymbol(hit.ID)
		if err != nil {
			continue
		}
		if opts.Kind != "" && sym.Kind != opts.Kind {
			continue
		}
		if opts.Language != "" && sym.Language != opts.Language {
			continue
		}
		if opts.FilePath != "" && !strings.Contains(sym.FilePath, opts.FilePath) {
			continue
		}
		results = append(results, &SearchResult{Symbol: sym, Score: hit.Score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// GetFileInfo retrieves file tracking info.
func (s *Store) GetFileInfo(path string) (*FileInfo, error) {
	var info FileInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketFiles).Get([]byte(path))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// SetFileInfo stores file tracking info.
func (s *Store) SetFileInfo(info *FileInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(BucketFiles).Put([]byte(info.Path), data)
	})
}

// ListFiles returns every tracked file path in key order.
func (s *Store) ListFiles() ([]string, error) {
	var paths []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketFiles).ForEach(func(k, _ []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	return paths, err
}

// ClearFile removes all symbols for a file and its tracking info.
func (s *Store) ClearFile(path string) error {
	info, err := s.GetFileInfo(path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if info != nil {
		for _, id := range info.SymbolIDs {
			if err := s.DeleteSymbol(id); err != nil {
				log.Printf("[uast:index] failed to delete symbol %s: %v", id, err)
			}
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketFiles).Delete([]byte(path))
	})
}

// Clear removes all symbols and file tracking data.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketSymbols, BucketFiles} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.resetSearch()
}

// Stats returns index statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	err := s.db.View(func(tx *bolt.Tx) error {
		stats.Symbols = tx.Bucket(BucketSymbols).Stats().KeyN
		stats.Files = tx.Bucket(BucketFiles).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetFileSymbols returns all symbols for a file in extraction order.
func (s *Store) GetFileSymbols(path string) ([]*Symbol, error) {
	info, err := s.GetFileInfo(path)
	if err != nil {
		return nil, err
	}

	symbols := make([]*Symbol, 0, len(info.SymbolIDs))
	for _, id := range info.SymbolIDs {
		sym, err := s.GetSymbol(id)
		if err != nil {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}
