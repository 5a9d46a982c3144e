package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

// CreatePage stores a page holding blocks, ordered as given.
func CreatePage(t *testing.T, repo page.Repository, title, slug string, blocks ...block.Block) block.Document {
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.NewString()
		}
		blocks[i].Order = i
	}
	doc, err := block.Serialize(block.Page{
		ID:        uuid.NewString(),
		Title:     title,
		Slug:      slug,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
		Blocks:    blocks,
	})
	if err != nil {
		t.Fatalf("CreatePage() failed: %v", err)
	}
	doc, err = repo.CreatePage(context.Background(), doc)
	if err != nil {
		t.Fatalf("CreatePage() failed: %v", err)
	}
	return doc
}

// NewBlock returns a block of cfg's type holding cfg.
func NewBlock(id string, cfg block.Config) block.Block {
	return block.Block{ID: id, Type: cfg.Type(), Config: cfg}
}

// Logger records log messages.
type Logger struct {
	mu   sync.Mutex
	msgs []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			msg += ": " + err.Error()
		}
	}
	l.msgs = append(l.msgs, level+" "+msg)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args...) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args...) }

// Messages returns the logged messages starting with prefix ("WARN", "ERROR", ...).
func (l *Logger) Messages(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var msgs []string
	for _, m := range l.msgs {
		if strings.HasPrefix(m, prefix) {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// AssetStore is an in-memory page.AssetStore. Its references look like "mem://<n>/<name>".
type AssetStore struct {
	mu      sync.Mutex
	n       int
	files   map[string][]byte
	deleted []string

	// Gate, when set, blocks uploads until it is closed or receives a value.
	Gate chan struct{}
	// UploadErr and DeleteErr, when set, make the operations fail.
	UploadErr error
	DeleteErr error
}

var _ page.AssetStore = (*AssetStore)(nil)

func NewAssetStore() *AssetStore {
	return &AssetStore{files: make(map[string][]byte)}
}

func (s *AssetStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.n++
	ref := fmt.Sprintf("mem://%d/%s", s.n, name)
	s.files[ref] = data
	return ref, nil
}

func (s *AssetStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.files[ref]; !ok {
		return errors.Errorf("asset %s not found", ref)
	}
	delete(s.files, ref)
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *AssetStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, "mem://")
}

// Put stores an asset directly and returns its reference.
func (s *AssetStore) Put(name string, data []byte) string {
	ref, _ := s.Upload(context.Background(), name, strings.NewReader(string(data)))
	return ref
}

func (s *AssetStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[ref]
	return ok
}

func (s *AssetStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
