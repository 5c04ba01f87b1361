package index

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/uast/pkg/grammar"
	"github.com/jmylchreest/uast/pkg/ignore"
)

// Watcher watches source directories and reports debounced batches of
// changed files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   WatcherConfig
	root     string
	ignore   *ignore.Matcher
	onChange func(path string, op fsnotify.Op)
	stop     chan struct{}
	wg       sync.WaitGroup // event loop and in-flight flushes

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	timer   *time.Timer
	stopped bool

	closeFn func() // releases resources owned by the onChange callback
}

// NewWatcher creates a watcher rooted at root. Paths in config are resolved
// against root; matcher decides which directories and files are skipped.
func NewWatcher(root string, config WatcherConfig, matcher *ignore.Matcher, onChange func(path string, op fsnotify.Op)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}
	if matcher == nil {
		matcher = ignore.NewEmpty()
	}
	return &Watcher{
		watcher:  fsWatcher,
		config:   config,
		root:     root,
		ignore:   matcher,
		onChange: onChange,
		stop:     make(chan struct{}),
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

// Start registers every non-ignored directory and begins processing events.
func (w *Watcher) Start() error {
	paths := w.config.Paths
	if len(paths) == 0 {
		paths = []string{w.root}
	}

	shouldSkip := w.ignore.WalkFunc(w.root)
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(w.root, p)
		}
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if skip, _ := shouldSkip(path, true); skip {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		})
		if err != nil {
			return err
		}
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops the watcher and waits for a flush already in progress.
// Pending changes that have not been flushed are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.stop)
	w.wg.Wait()

	err := w.watcher.Close()
	if w.closeFn != nil {
		w.closeFn()
	}
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	shouldSkip := w.ignore.WalkFunc(w.root)
	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if skip, _ := shouldSkip(event.Name, true); !skip {
						if err := w.watcher.Add(event.Name); err == nil {
							log.Printf("[uast:watcher] watching new directory: %s", event.Name)
						}
					}
					continue
				}
			}

			if !w.relevant(event.Name) {
				continue
			}
			if skip, _ := shouldSkip(event.Name, false); skip {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.queueChange(event.Name, event.Op)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[uast:watcher] error: %v", err)
		}
	}
}

// relevant filters out unsupported extensions and editor temp files.
func (w *Watcher) relevant(path string) bool {
	if _, ok := grammar.FromPath(path); !ok {
		return false
	}
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, "~") &&
		!strings.HasSuffix(name, ".swp") && !strings.HasSuffix(name, ".tmp")
}

// queueChange records a change and (re)arms the debounce timer, so a batch
// flushes once the tree has been quiet for DebounceDelay.
func (w *Watcher) queueChange(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.pending[path] = op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.DebounceDelay, w.flushPending)
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.timer = nil
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	if len(pending) == 0 {
		return
	}

	log.Printf("[uast:watcher] processing %d file changes after debounce", len(pending))

	for path, op := range pending {
		if w.onChange != nil {
			w.onChange(path, op)
		}
	}
}

// Watch creates a watcher that keeps the index current: removed files are
// dropped, everything else is re-parsed with a parser owned by the watcher.
func (ix *Indexer) Watch(config WatcherConfig) (*Watcher, error) {
	parser, err := ix.newParser()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	onChange := func(path string, op fsnotify.Op) {
		mu.Lock()
		defer mu.Unlock()

		if op&fsnotify.Remove != 0 {
			if err := ix.RemoveFile(path); err != nil {
				log.Printf("[uast:watcher] failed to remove %s: %v", path, err)
			} else {
				log.Printf("[uast:watcher] removed %s from index", path)
			}
			return
		}
		// A rename reports the old name; it no longer exists.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := ix.RemoveFile(path); err != nil {
				log.Printf("[uast:watcher] failed to remove renamed %s: %v", path, err)
			}
			return
		}
		count, err := ix.IndexFile(parser, path)
		if err != nil {
			log.Printf("[uast:watcher] failed to index %s: %v", path, err)
			return
		}
		log.Printf("[uast:watcher] indexed %s: %d symbols", path, count)
	}

	w, err := NewWatcher(ix.opts.Root, config, ix.opts.Ignore, onChange)
	if err != nil {
		parser.Close()
		return nil, err
	}
	w.closeFn = parser.Close
	return w, nil
}
