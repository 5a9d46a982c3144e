package sqlxrepos_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
	"github.com/trezcool/vitrine/storage/database"
	"github.com/trezcool/vitrine/storage/database/sqlx"
	"github.com/trezcool/vitrine/tests"
)

func openSQLite(t *testing.T) *sqlx.DB {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestPageRepository_sqlite(t *testing.T) {
	testutil.TestRepository(t, func(t *testing.T) page.Repository {
		return sqlxrepos.NewPageRepository(openSQLite(t))
	})
}

func TestMigrate(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	version, err := database.MigrationVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// up to date: a no-op
	require.NoError(t, database.Migrate(ctx, db))
}

func newMock(t *testing.T) (page.Repository, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return sqlxrepos.NewPageRepository(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestPageRepository_SavePage_concurrentWrite(t *testing.T) {
	repo, mock := newMock(t)
	doc := block.Document{ID: "p1", Title: "Club", Slug: "club", UpdatedAt: time.Now().UTC()}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM pages WHERE id = ?")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pages WHERE slug = ? AND id <> ?")).
		WithArgs("club", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE pages SET").
		WithArgs("Club", "club", "", sqlmock.AnyArg(), int64(5), sqlmock.AnyArg(), "p1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.SavePage(context.Background(), doc, 4)
	assert.ErrorIs(t, err, page.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageRepository_dbErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("get", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery("SELECT id, document, version FROM pages").WillReturnError(boom)
		_, err := repo.GetPage(ctx, "p1")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, page.ErrNotFound)
	})

	t.Run("create", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO pages").WillReturnError(boom)
		mock.ExpectRollback()
		_, err := repo.CreatePage(ctx, block.Document{ID: "p1", Slug: "club"})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery("SELECT id, document, version FROM pages ORDER BY").
			WillReturnRows(sqlmock.NewRows([]string{"id", "document", "version"}).AddRow("p1", "{not json", 1))
		_, err := repo.QueryPages(ctx)
		assert.ErrorContains(t, err, "decoding page p1")
	})

	t.Run("closed connection", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
		_, err := repo.SavePage(ctx, block.Document{ID: "p1", Slug: "club"}, 0)
		assert.True(t, core.IsShutdown(err))
	})
}
