// Package mongodb stores page documents in a MongoDB collection, one document per page.
package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

const pagesCollection = "pages"

// Connect opens a client on uri and checks the server answers.
func Connect(ctx context.Context, conf core.MongoConfig) (*mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return client.Database(conf.Database), nil
}

type (
	pageRecord struct {
		ID        string        `bson:"_id"`
		Title     string        `bson:"title"`
		Slug      string        `bson:"slug"`
		Category  string        `bson:"category"`
		Version   int64         `bson:"version"`
		UpdatedAt time.Time     `bson:"updated_at"`
		Blocks    []blockRecord `bson:"blocks"`
	}

	blockRecord struct {
		ID     string `bson:"id"`
		Type   string `bson:"type"`
		Order  int    `bson:"order"`
		Config bson.D `bson:"config"`
	}
)

func toRecord(doc block.Document) (pageRecord, error) {
	rec := pageRecord{
		ID:        doc.ID,
		Title:     doc.Title,
		Slug:      doc.Slug,
		Category:  doc.Category,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
		Blocks:    make([]blockRecord, 0, len(doc.Blocks)),
	}
	for _, bd := range doc.Blocks {
		// configs are kept as sub-documents, so they stay queryable
		var cfg bson.D
		if err := bson.UnmarshalExtJSON(bd.Config, false, &cfg); err != nil {
			return pageRecord{}, errors.Wrapf(err, "encoding block %s", bd.ID)
		}
		rec.Blocks = append(rec.Blocks, blockRecord{ID: bd.ID, Type: bd.Type, Order: bd.Order, Config: cfg})
	}
	return rec, nil
}

func (rec pageRecord) toDocument() (block.Document, error) {
	doc := block.Document{
		ID:        rec.ID,
		Title:     rec.Title,
		Slug:      rec.Slug,
		Category:  rec.Category,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt.UTC(),
		Blocks:    make([]block.BlockDocument, 0, len(rec.Blocks)),
	}
	for _, br := range rec.Blocks {
		cfg := br.Config
		if cfg == nil {
			cfg = bson.D{}
		}
		raw, err := bson.MarshalExtJSON(cfg, false, false)
		if err != nil {
			return block.Document{}, errors.Wrapf(err, "decoding block %s", br.ID)
		}
		doc.Blocks = append(doc.Blocks, block.BlockDocument{ID: br.ID, Type: br.Type, Order: br.Order, Config: json.RawMessage(raw)})
	}
	return doc, nil
}

type pageRepository struct {
	coll *mongo.Collection
}

var _ page.Repository = (*pageRepository)(nil)

// NewPageRepository returns a repository over the pages collection of db, creating its indexes.
func NewPageRepository(ctx context.Context, db *mongo.Database) (*pageRepository, error) {
	coll := db.Collection(pagesCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating page indexes")
	}
	return &pageRepository{coll: coll}, nil
}

func (repo *pageRepository) CreatePage(ctx context.Context, doc block.Document) (block.Document, error) {
	doc.Version = 1
	rec, err := toRecord(doc)
	if err != nil {
		return block.Document{}, err
	}
	if _, err = repo.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return block.Document{}, page.ErrSlugExists
		}
		return block.Document{}, errors.Wrap(err, "inserting page")
	}
	return doc, nil
}

func (repo *pageRepository) GetPage(ctx context.Context, id string) (block.Document, error) {
	var rec pageRecord
	if err := repo.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return block.Document{}, page.ErrNotFound
		}
		return block.Document{}, errors.Wrap(err, "getting page")
	}
	return rec.toDocument()
}

func (repo *pageRepository) SavePage(ctx context.Context, doc block.Document, expectedVersion int64) (block.Document, error) {
	current, err := repo.GetPage(ctx, doc.ID)
	if err != nil {
		return block.Document{}, err
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return block.Document{}, page.ErrVersionConflict
	}

	doc.Version = current.Version + 1
	rec, err := toRecord(doc)
	if err != nil {
		return block.Document{}, err
	}
	// the version filter makes the replace a compare-and-swap
	filter := bson.D{{Key: "_id", Value: doc.ID}, {Key: "version", Value: current.Version}}
	res, err := repo.coll.ReplaceOne(ctx, filter, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return block.Document{}, page.ErrSlugExists
		}
		return block.Document{}, errors.Wrap(err, "replacing page")
	}
	if res.MatchedCount == 0 {
		return block.Document{}, page.ErrVersionConflict
	}
	return doc, nil
}

var pageFields = map[string]string{
	"title":      "title",
	"slug":       "slug",
	"category":   "category",
	"version":    "version",
	"updated_at": "updated_at",
}

func (repo *pageRepository) QueryPages(ctx context.Context, ordering ...core.DBOrdering) ([]block.Document, error) {
	sort := bson.D{}
	for _, ord := range ordering {
		if field, ok := pageFields[ord.Field]; ok {
			dir := -1
			if ord.Ascending {
				dir = 1
			}
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
	}
	if len(sort) == 0 {
		sort = append(sort, bson.E{Key: "updated_at", Value: -1})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	// case-insensitive ordering of titles
	opts := options.Find().SetSort(sort).SetCollation(&options.Collation{Locale: "en", Strength: 2})
	cursor, err := repo.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	var recs []pageRecord
	if err = cursor.All(ctx, &recs); err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	docs := make([]block.Document, 0, len(recs))
	for _, rec := range recs {
		doc, err := rec.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
