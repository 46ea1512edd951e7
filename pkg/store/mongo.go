package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/netcut/pkg/shape"
)

// Default MongoDB settings.
const (
	DefaultMongoDatabase   = "netcut"
	DefaultMongoCollection = "weights"
	mongoConnectTimeout    = 10 * time.Second
)

// tensorRecord is one tensor document. The tensor name is the _id.
type tensorRecord struct {
	Name      string    `bson:"_id"`
	DType     string    `bson:"dtype"`
	Dims      []int64   `bson:"dims"`
	Data      []byte    `bson:"data,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per tensor in a MongoDB collection.
// Shape lookups project away the data field, so seeding shape hints does
// not transfer weight bytes.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

// MongoOptions configures [OpenMongoStore].
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// OpenMongoStore connects to MongoDB and returns a store over the configured
// collection. Close disconnects the client.
func OpenMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if opts.Database == "" {
		opts.Database = DefaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultMongoCollection
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewMongoStore(client.Database(opts.Database).Collection(opts.Collection))
	s.client, s.owned = client, true
	return s, nil
}

// NewMongoStore wraps an existing collection. The caller keeps ownership of
// the client.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Close disconnects the client if the store opened it.
func (m *MongoStore) Close(ctx context.Context) error {
	if m.owned && m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}

// Put upserts a tensor.
func (m *MongoStore) Put(ctx context.Context, name string, t Tensor) error {
	rec := tensorRecord{
		Name:      name,
		DType:     t.DType.String(),
		Dims:      t.Dims,
		Data:      t.Data,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": name}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Names lists every tensor name in the collection.
func (m *MongoStore) Names(ctx context.Context) ([]string, error) {
	cur, err := m.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list tensors: %w", err)
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var rec struct {
			Name string `bson:"_id"`
		}
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		names = append(names, rec.Name)
	}
	return names, cur.Err()
}

// Get loads a tensor with its data.
func (m *MongoStore) Get(ctx context.Context, name string) (Tensor, bool, error) {
	var rec tensorRecord
	err := m.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Tensor{}, false, nil
	}
	if err != nil {
		return Tensor{}, false, fmt.Errorf("get %s: %w", name, err)
	}
	dt, err := shape.ParseDType(rec.DType)
	if err != nil {
		return Tensor{}, false, fmt.Errorf("get %s: %w", name, err)
	}
	return Tensor{DType: dt, Dims: rec.Dims, Data: rec.Data}, true, nil
}

// Info loads a tensor's shape without its data.
func (m *MongoStore) Info(ctx context.Context, name string) (shape.Shape, bool, error) {
	var rec tensorRecord
	opts := options.FindOne().SetProjection(bson.M{"data": 0})
	err := m.coll.FindOne(ctx, bson.M{"_id": name}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return shape.Shape{}, false, nil
	}
	if err != nil {
		return shape.Shape{}, false, fmt.Errorf("info %s: %w", name, err)
	}
	dt, err := shape.ParseDType(rec.DType)
	if err != nil {
		return shape.Shape{}, false, fmt.Errorf("info %s: %w", name, err)
	}
	return shape.Shape{DType: dt, Dims: rec.Dims}, true, nil
}

// Delete removes one tensor. A missing tensor is not an error.
func (m *MongoStore) Delete(ctx context.Context, name string) error {
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// DeleteAll removes the given tensors with a single DeleteMany.
func (m *MongoStore) DeleteAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if _, err := m.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": names}}); err != nil {
		return fmt.Errorf("delete %d tensors: %w", len(names), err)
	}
	return nil
}

// Ensure MongoStore implements Store and BatchDeleter.
var (
	_ Store        = (*MongoStore)(nil)
	_ BatchDeleter = (*MongoStore)(nil)
)
