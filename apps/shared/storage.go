// Package shared holds the set-up code common to the apps.
package shared

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/page"
	"github.com/trezcool/vitrine/storage/database"
	inmemdb "github.com/trezcool/vitrine/storage/database/inmem"
	sqlxrepos "github.com/trezcool/vitrine/storage/database/sqlx"
	"github.com/trezcool/vitrine/storage/mongodb"
)

// Storage is an opened page repository and the connection behind it.
type Storage struct {
	Repo page.Repository
	DB   *sqlx.DB // set for the sql storage

	mongo *mongo.Database
}

// OpenStorage opens the page storage selected by conf.Storage.
// SQL databases are created if needed and migrated when migrate is set.
func OpenStorage(ctx context.Context, conf *core.Config, migrate bool) (*Storage, error) {
	switch conf.Storage {
	case core.StorageSQL:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Storage{Repo: sqlxrepos.NewPageRepository(db), DB: db}, nil

	case core.StorageMongo:
		db, err := mongodb.Connect(ctx, conf.Mongo)
		if err != nil {
			return nil, err
		}
		repo, err := mongodb.NewPageRepository(ctx, db)
		if err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, err
		}
		return &Storage{Repo: repo, mongo: db}, nil

	case core.StorageMemory:
		db, err := inmemdb.Open()
		if err != nil {
			return nil, err
		}
		return &Storage{Repo: inmemdb.NewPageRepository(db)}, nil

	default:
		return nil, errors.Errorf("unsupported storage %q", conf.Storage)
	}
}

func (s *Storage) Close(ctx context.Context) error {
	switch {
	case s.DB != nil:
		return s.DB.Close()
	case s.mongo != nil:
		return s.mongo.Client().Disconnect(ctx)
	}
	return nil
}

// NewValidator returns the validator and translator of the apps, with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	page.RegisterValidators(validate, translator)
	return validate, translator
}
