package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

// TestRepository checks the behaviour every page.Repository implementation shares.
// newRepo must return an empty repository.
func TestRepository(t *testing.T, newRepo func(t *testing.T) page.Repository) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		doc := CreatePage(t, repo, "Robotics", "robotics",
			NewBlock("t", block.TextConfig{Content: "# Hi", Alignment: block.AlignCenter, FontSize: block.FontLarge}),
			NewBlock("g", block.GalleryConfig{Title: "Build day", GridView: 3, Images: []string{"a.png", "b.png"}}),
		)
		assert.Equal(t, int64(1), doc.Version)

		got, err := repo.GetPage(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, "robotics", got.Slug)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))

		p, err := block.Deserialize(got)
		require.NoError(t, err)
		require.Len(t, p.Blocks, 2)
		assert.Equal(t, []string{"a.png", "b.png"}, p.Blocks[1].Config.(block.GalleryConfig).Images)

		_, err = repo.GetPage(ctx, "missing")
		assert.ErrorIs(t, err, page.ErrNotFound)
	})

	t.Run("slug uniqueness", func(t *testing.T) {
		repo := newRepo(t)
		CreatePage(t, repo, "One", "one")
		two := CreatePage(t, repo, "Two", "two")

		_, err := repo.CreatePage(ctx, block.Document{ID: "x", Title: "Again", Slug: "one", UpdatedAt: at})
		assert.ErrorIs(t, err, page.ErrSlugExists)

		two.Slug = "one"
		_, err = repo.SavePage(ctx, two, 0)
		assert.ErrorIs(t, err, page.ErrSlugExists)
	})

	t.Run("save", func(t *testing.T) {
		repo := newRepo(t)
		doc := CreatePage(t, repo, "Chess", "chess")

		doc.Title = "Chess Club"
		doc.Blocks = []block.BlockDocument{{ID: "c", Type: "cta", Order: 0, Config: []byte(`{"title":"Join","link":"/join"}`)}}
		saved, err := repo.SavePage(ctx, doc, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)

		_, err = repo.SavePage(ctx, doc, 1)
		assert.ErrorIs(t, err, page.ErrVersionConflict)

		saved, err = repo.SavePage(ctx, doc, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), saved.Version)

		got, err := repo.GetPage(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Chess Club", got.Title)
		assert.Equal(t, int64(3), got.Version)
		require.Len(t, got.Blocks, 1)
		assert.JSONEq(t, `{"title":"Join","link":"/join"}`, string(got.Blocks[0].Config))

		_, err = repo.SavePage(ctx, block.Document{ID: "missing", Slug: "missing"}, 0)
		assert.ErrorIs(t, err, page.ErrNotFound)
	})

	t.Run("query", func(t *testing.T) {
		repo := newRepo(t)
		for i, title := range []string{"banjo", "Accordion", "cello"} {
			_, err := repo.CreatePage(ctx, block.Document{
				ID:        title,
				Title:     title,
				Slug:      page.Slugify(title),
				Category:  []string{"b", "a", "a"}[i],
				UpdatedAt: at.Add(time.Duration(i) * time.Hour),
				Blocks:    []block.BlockDocument{},
			})
			require.NoError(t, err)
		}

		tests := []struct {
			name     string
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "latest first by default", want: []string{"cello", "Accordion", "banjo"}},
			{name: "title", ordering: []core.DBOrdering{{Field: "title", Ascending: true}}, want: []string{"Accordion", "banjo", "cello"}},
			{
				name:     "category then title",
				ordering: []core.DBOrdering{{Field: "category", Ascending: true}, {Field: "title"}},
				want:     []string{"cello", "Accordion", "banjo"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := repo.QueryPages(ctx, tt.ordering...)
				require.NoError(t, err)
				ids := make([]string, len(docs))
				for i, doc := range docs {
					ids[i] = doc.ID
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})
}
