package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// JSONFile is a Table kept as a single JSON object on disk. Every operation
// re-reads the whole document, so edits made by hand between commands are
// picked up. A broken or missing file reads as an empty table and write
// failures are logged, never returned.
type JSONFile[T any] struct {
	path string
	mu   sync.Mutex
}

// NewJSONFile returns a table stored at path.
func NewJSONFile[T any](path string) *JSONFile[T] {
	return &JSONFile[T]{path: path}
}

// Path returns the file backing the table.
func (f *JSONFile[T]) Path() string {
	return f.path
}

func (f *JSONFile[T]) Get(_ context.Context, key string) (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.load()
	v, ok := doc[key]
	return v, ok, nil
}

func (f *JSONFile[T]) Put(_ context.Context, key string, value T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.load()
	doc[key] = value
	f.save(doc)
	return nil
}

func (f *JSONFile[T]) Update(_ context.Context, key string, fn UpdateFunc[T]) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.load()
	current, exists := doc[key]

	next, err := fn(current, exists)
	if errors.Is(err, ErrSkipWrite) {
		return current, nil
	}
	if err != nil {
		var zero T
		return zero, err
	}

	doc[key] = next
	f.save(doc)
	return next, nil
}

func (f *JSONFile[T]) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.load()
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// load reads the document, falling back to an empty one.
func (f *JSONFile[T]) load() map[string]T {
	doc := make(map[string]T)

	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc
	}
	if err != nil {
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to read store file")
		return doc
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return doc
	}

	if err := json.Unmarshal(b, &doc); err != nil {
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to parse store file")
		return make(map[string]T)
	}
	return doc
}

// save writes the document through a temp file in the same directory.
func (f *JSONFile[T]) save(doc map[string]T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to encode store file")
		return
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to save store file")
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to save store file")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to save store file")
		return
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		log.WithError(err).WithField("path", f.path).Error("❌ Failed to save store file")
	}
}

var _ Table[struct{}] = (*JSONFile[struct{}])(nil)
