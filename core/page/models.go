package page

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
)

type (
	// Repository persists whole page documents.
	Repository interface {
		// CreatePage stores a new document. It fails with ErrSlugExists if the slug is taken.
		CreatePage(ctx context.Context, doc block.Document) (block.Document, error)
		GetPage(ctx context.Context, id string) (block.Document, error)
		// SavePage replaces the stored document and returns it with its version bumped.
		// A non-zero expectedVersion must match the stored version, or ErrVersionConflict is returned.
		SavePage(ctx context.Context, doc block.Document, expectedVersion int64) (block.Document, error)
		QueryPages(ctx context.Context, ordering ...core.DBOrdering) ([]block.Document, error)
	}

	// AssetStore stores uploaded files and hands back opaque references to them.
	AssetStore interface {
		Upload(ctx context.Context, name string, r io.Reader) (ref string, err error)
		Delete(ctx context.Context, ref string) error
		// Owns reports whether ref was issued by this store (and may be deleted by it).
		Owns(ref string) bool
	}

	// Cache holds rendered page views. Get returns ErrCacheMiss for absent keys.
	Cache interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, val []byte) error
	}
)

// NewPage contains information needed to create a new page.
type NewPage struct {
	Title    string `json:"title" validate:"notblank"`
	Slug     string `json:"slug" validate:"required,slug"`
	Category string `json:"category"`
}

func (np *NewPage) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Slug = core.CleanString(np.Slug, true /* lower */)
	np.Category = core.CleanString(np.Category)
	if np.Slug == "" {
		np.Slug = Slugify(np.Title)
	}
	return validate.Struct(np)
}

// Slugify derives a url-friendly slug from s.
func Slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// Summary describes a page in listings.
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Category   string    `json:"category"`
	Version    int64     `json:"version"`
	BlockCount int       `json:"block_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func summarize(doc block.Document) Summary {
	return Summary{
		ID:         doc.ID,
		Title:      doc.Title,
		Slug:       doc.Slug,
		Category:   doc.Category,
		Version:    doc.Version,
		BlockCount: len(doc.Blocks),
		UpdatedAt:  doc.UpdatedAt,
	}
}

// View is a rendered page.
type View struct {
	Summary
	Blocks []block.Display `json:"blocks"`
}

// Snapshot is the state of an editing session.
type Snapshot struct {
	SessionID   string        `json:"session_id"`
	PageID      string        `json:"page_id"`
	Title       string        `json:"title"`
	BaseVersion int64         `json:"base_version"`
	Dirty       bool          `json:"dirty"`
	Blocks      []block.Block `json:"blocks"`
	Uploads     []SlotStatus  `json:"uploads"`
}
