package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

// pageColumns maps the orderable fields to their columns.
var pageColumns = map[string]string{
	"title":      "LOWER(title)",
	"slug":       "slug",
	"category":   "category",
	"version":    "version",
	"updated_at": "updated_at",
}

// pageRow is a pages table row. The whole document is stored as JSON;
// the other columns are copies used for lookups, ordering and optimistic locking.
type pageRow struct {
	ID       string `db:"id"`
	Document string `db:"document"`
	Version  int64  `db:"version"`
}

func (r pageRow) toDocument() (block.Document, error) {
	var doc block.Document
	if err := json.Unmarshal([]byte(r.Document), &doc); err != nil {
		return block.Document{}, errors.Wrapf(err, "decoding page %s", r.ID)
	}
	doc.Version = r.Version
	return doc, nil
}

type pageRepository struct {
	db *sqlx.DB
}

var _ page.Repository = (*pageRepository)(nil)

func NewPageRepository(db *sqlx.DB) *pageRepository {
	return &pageRepository{db: db}
}

func (repo *pageRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return core.NewShutdownError("database connection is closed")
		}
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func checkSlugUniqueness(ctx context.Context, tx *sqlx.Tx, slug, excludedID string) error {
	var n int
	q := tx.Rebind("SELECT COUNT(*) FROM pages WHERE slug = ? AND id <> ?")
	if err := tx.GetContext(ctx, &n, q, slug, excludedID); err != nil {
		return errors.Wrap(err, "checking slug")
	}
	if n > 0 {
		return page.ErrSlugExists
	}
	return nil
}

func (repo *pageRepository) CreatePage(ctx context.Context, doc block.Document) (block.Document, error) {
	doc.Version = 1
	data, err := json.Marshal(doc)
	if err != nil {
		return block.Document{}, errors.Wrap(err, "encoding page")
	}

	err = repo.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkSlugUniqueness(ctx, tx, doc.Slug, doc.ID); err != nil {
			return err
		}
		q := tx.Rebind(`INSERT INTO pages (id, title, slug, category, document, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q, doc.ID, doc.Title, doc.Slug, doc.Category, string(data), doc.Version, doc.UpdatedAt)
		return errors.Wrap(err, "inserting page")
	})
	if err != nil {
		return block.Document{}, err
	}
	return doc, nil
}

func (repo *pageRepository) GetPage(ctx context.Context, id string) (block.Document, error) {
	var row pageRow
	q := repo.db.Rebind("SELECT id, document, version FROM pages WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return block.Document{}, page.ErrNotFound
		}
		return block.Document{}, errors.Wrap(err, "getting page")
	}
	return row.toDocument()
}

func (repo *pageRepository) SavePage(ctx context.Context, doc block.Document, expectedVersion int64) (block.Document, error) {
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var current int64
		q := tx.Rebind("SELECT version FROM pages WHERE id = ?")
		if err := tx.GetContext(ctx, &current, q, doc.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return page.ErrNotFound
			}
			return errors.Wrap(err, "getting page version")
		}
		if expectedVersion != 0 && expectedVersion != current {
			return page.ErrVersionConflict
		}
		if err := checkSlugUniqueness(ctx, tx, doc.Slug, doc.ID); err != nil {
			return err
		}

		doc.Version = current + 1
		data, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "encoding page")
		}
		q = tx.Rebind(`UPDATE pages SET title = ?, slug = ?, category = ?, document = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`)
		res, err := tx.ExecContext(ctx, q, doc.Title, doc.Slug, doc.Category, string(data), doc.Version, doc.UpdatedAt, doc.ID, current)
		if err != nil {
			return errors.Wrap(err, "updating page")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return page.ErrVersionConflict // written concurrently
		}
		return nil
	})
	if err != nil {
		return block.Document{}, err
	}
	return doc, nil
}

func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := pageColumns[ord.Field]; ok {
			clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(clauses) == 0 {
		clauses = append(clauses, core.DBOrdering{Field: "updated_at"}.String())
	}
	return strings.Join(append(clauses, "id ASC"), ", ")
}

func (repo *pageRepository) QueryPages(ctx context.Context, ordering ...core.DBOrdering) ([]block.Document, error) {
	var rows []pageRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT id, document, version FROM pages ORDER BY "+orderBy(ordering)); err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	docs := make([]block.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
