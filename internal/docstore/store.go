package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// Patch is a partial document update. Nil fields keep the stored value.
type Patch struct {
	Title   *string
	Content *string
}

// Store keeps one JSON file per document under dir, named by numeric id.
type Store struct {
	dir string
	log pslog.Logger
	now func() time.Time
	// mu serializes id allocation and read-modify-write updates.
	mu sync.Mutex
}

// NewStore constructs a document store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a document store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("document directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("doc_dir", dir)
	}
	return &Store{dir: dir, log: logger, now: time.Now}, nil
}

// List returns every readable document ordered by id.
func (s *Store) List(ctx context.Context) ([]schema.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.ids()
	if err != nil {
		s.warn("docstore list failed", "err", err)
		return nil, fmt.Errorf("%w: %w", schema.ErrFetch, err)
	}
	docs := make([]schema.Document, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.load(id)
		if err != nil {
			s.warn("docstore list skipped document", "doc", id, "err", err)
			continue
		}
		docs = append(docs, doc)
	}
	s.trace("docstore list ok", "docs", len(docs))
	return docs, nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, id schema.DocID) (schema.Document, error) {
	n, ok := id.Numeric()
	if !ok {
		return schema.Document{}, fmt.Errorf("%w: %s", schema.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(n)
}

// Create stores a new document under the next free id.
func (s *Store) Create(ctx context.Context, title, content string) (schema.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.ids()
	if err != nil {
		s.warn("docstore create failed", "err", err)
		return schema.Document{}, fmt.Errorf("%w: %w", schema.ErrCreate, err)
	}
	var next int64 = 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	now := s.now()
	doc := schema.Document{
		ID:        schema.NumericID(next),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(next, doc); err != nil {
		return schema.Document{}, fmt.Errorf("%w: %w", schema.ErrCreate, err)
	}
	s.debug("docstore document created", "doc", next, "title", title)
	return doc, nil
}

// Update replaces title and content of an existing document.
func (s *Store) Update(ctx context.Context, id schema.DocID, title, content string) error {
	_, err := s.Patch(ctx, id, Patch{Title: &title, Content: &content})
	return err
}

// Patch applies a partial update and returns the stored document.
func (s *Store) Patch(ctx context.Context, id schema.DocID, patch Patch) (schema.Document, error) {
	n, ok := id.Numeric()
	if !ok {
		return schema.Document{}, fmt.Errorf("%w: %s", schema.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(n)
	if err != nil {
		return schema.Document{}, err
	}
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Content != nil {
		doc.Content = *patch.Content
	}
	doc.UpdatedAt = s.now()
	if err := s.save(n, doc); err != nil {
		return schema.Document{}, fmt.Errorf("%w: %w", schema.ErrSave, err)
	}
	s.trace("docstore document updated", "doc", n)
	return doc, nil
}

// Delete removes a document file.
func (s *Store) Delete(ctx context.Context, id schema.DocID) error {
	n, ok := id.Numeric()
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(n)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %d", schema.ErrNotFound, n)
		}
		s.warn("docstore delete failed", "doc", n, "err", err)
		return err
	}
	s.debug("docstore document deleted", "doc", n)
	return nil
}

// load reads one document. A file that cannot be decoded is replaced by a
// default document so a single bad write never hides an id.
func (s *Store) load(id int64) (schema.Document, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.Document{}, fmt.Errorf("%w: %d", schema.ErrNotFound, id)
		}
		s.warn("docstore load failed", "doc", id, "err", err)
		return schema.Document{}, fmt.Errorf("%w: %w", schema.ErrFetch, err)
	}
	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.warn("docstore document corrupt", "doc", id, "err", err)
		return s.regenerate(id)
	}
	doc.ID = schema.NumericID(id)
	return doc, nil
}

func (s *Store) regenerate(id int64) (schema.Document, error) {
	now := s.now()
	name := "Document" + strconv.FormatInt(id, 10)
	doc := schema.Document{
		ID:        schema.NumericID(id),
		Title:     name + ".md",
		Content:   "# " + name + "\n\n",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(id, doc); err != nil {
		return schema.Document{}, fmt.Errorf("%w: %w", schema.ErrFetch, err)
	}
	return doc, nil
}

func (s *Store) save(id int64, doc schema.Document) error {
	path := s.path(id)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.warn("docstore save failed", "doc", id, "err", err)
		return err
	}
	if err := writeAtomic(path, data); err != nil {
		s.warn("docstore save failed", "doc", id, "err", err)
		return err
	}
	return nil
}

// ids lists the numeric ids present on disk in ascending order.
func (s *Store) ids() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) path(id int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(id, 10)+".json")
}

// writeAtomic replaces path with data via a synced temp file in the same
// directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "doc-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) trace(msg string, kv ...any) {
	if s.log != nil {
		s.log.Trace(msg, kv...)
	}
}
