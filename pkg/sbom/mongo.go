package sbom

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// MongoConfig configures the MongoDB registry backend.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string
	// Database defaults to "trustmesh", Collection to "sboms".
	Database   string
	Collection string
}

// MongoRegistry stores documents in a MongoDB collection keyed by the
// canonical coordinate string.
type MongoRegistry struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// mongoDoc is the stored shape. The coordinate is flattened to its
// canonical string so it can serve as the lookup key.
type mongoDoc struct {
	Purl       string    `bson:"_id"`
	Format     string    `bson:"format"`
	Content    []byte    `bson:"content"`
	IngestedAt time.Time `bson:"ingested_at"`
}

// NewMongoRegistry connects to MongoDB and verifies the connection.
func NewMongoRegistry(ctx context.Context, cfg MongoConfig) (*MongoRegistry, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mongodb URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = "trustmesh"
	}
	if cfg.Collection == "" {
		cfg.Collection = "sboms"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "cannot connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "mongodb ping failed")
	}

	return &MongoRegistry{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Put upserts the document under its canonical coordinate.
func (r *MongoRegistry) Put(ctx context.Context, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	stored := mongoDoc{
		Purl:       doc.Coordinate.String(),
		Format:     doc.Format,
		Content:    doc.Content,
		IngestedAt: doc.IngestedAt,
	}
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": stored.Purl},
		stored,
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "sbom upsert for %s failed", stored.Purl)
	}
	return nil
}

// Get fetches the document for a coordinate.
func (r *MongoRegistry) Get(ctx context.Context, coordinate purl.Coordinate) (*Document, error) {
	var stored mongoDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": coordinate.String()}).Decode(&stored)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "no sbom registered for %s", coordinate)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "sbom lookup for %s failed", coordinate)
	}

	return &Document{
		Coordinate: coordinate,
		Format:     stored.Format,
		Content:    stored.Content,
		IngestedAt: stored.IngestedAt,
	}, nil
}

// Close disconnects from MongoDB.
func (r *MongoRegistry) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

var _ Registry = (*MongoRegistry)(nil)
