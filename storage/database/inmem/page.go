package inmemdb

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

type pageRepository struct {
	db *pageTable
}

var _ page.Repository = (*pageRepository)(nil)

func NewPageRepository(db *DB) page.Repository {
	return &pageRepository{db: db.page}
}

// copyDoc returns a deep copy of doc, so callers never share stored block configs.
func copyDoc(doc block.Document) block.Document {
	blocks := make([]block.BlockDocument, len(doc.Blocks))
	for i, bd := range doc.Blocks {
		bd.Config = append(json.RawMessage(nil), bd.Config...)
		blocks[i] = bd
	}
	doc.Blocks = blocks
	return doc
}

func (repo *pageRepository) CreatePage(_ context.Context, doc block.Document) (block.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[doc.ID]; ok {
		return block.Document{}, errors.Errorf("page %s already exists", doc.ID)
	}
	for _, d := range repo.db.table {
		if d.Slug == doc.Slug {
			return block.Document{}, page.ErrSlugExists
		}
	}
	doc.Version = 1
	stored := copyDoc(doc)
	repo.db.table[doc.ID] = &stored
	return copyDoc(stored), nil
}

func (repo *pageRepository) GetPage(_ context.Context, id string) (block.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		return copyDoc(*doc), nil
	}
	return block.Document{}, page.ErrNotFound
}

func (repo *pageRepository) SavePage(_ context.Context, doc block.Document, expectedVersion int64) (block.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[doc.ID]
	if !ok {
		return block.Document{}, page.ErrNotFound
	}
	if expectedVersion != 0 && orig.Version != expectedVersion {
		return block.Document{}, page.ErrVersionConflict
	}
	for id, d := range repo.db.table {
		if id != doc.ID && d.Slug == doc.Slug {
			return block.Document{}, page.ErrSlugExists
		}
	}
	doc.Version = orig.Version + 1
	stored := copyDoc(doc)
	repo.db.table[doc.ID] = &stored
	return copyDoc(stored), nil
}

func (repo *pageRepository) QueryPages(_ context.Context, ordering ...core.DBOrdering) ([]block.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	docs := make([]block.Document, 0, len(repo.db.table))
	for _, doc := range repo.db.table {
		docs = append(docs, copyDoc(*doc))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "updated_at"}}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(docs[i], docs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func compare(a, b block.Document, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "slug":
		return strings.Compare(a.Slug, b.Slug)
	case "category":
		return strings.Compare(a.Category, b.Category)
	case "version":
		return int(a.Version - b.Version)
	default: // updated_at
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
}
