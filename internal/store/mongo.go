package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/keywatch/keywatch/internal/model"
)

// defaultMongoDatabase matches the database the mongo shell and most ODMs
// fall back to when the URI names none.
const defaultMongoDatabase = "test"

// MongoStore keeps records in MongoDB, one collection per kind.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Ensure MongoStore implements Store interface.
var _ Store = (*MongoStore)(nil)

// NewMongo connects to MongoDB, verifies the connection and creates the
// unique key index of every kind.
func NewMongo(ctx context.Context, uri, dbName string, timeout time.Duration) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if dbName == "" {
		dbName = databaseFromURI(uri)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.migrate(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func databaseFromURI(uri string) string {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil || cs.Database == "" {
		return defaultMongoDatabase
	}
	return cs.Database
}

// migrate creates a unique index on each kind's key field. Uniqueness is
// enforced here so concurrent creates of the same key cannot both succeed.
func (s *MongoStore) migrate(ctx context.Context) error {
	for _, k := range model.Kinds {
		idx := mongo.IndexModel{
			Keys:    bson.D{{Key: k.KeyField, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(k.KeyField + "_unique"),
		}
		if _, err := s.db.Collection(k.Collection).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create %s index: %w", k.Collection, err)
		}
	}
	return nil
}

// Backend returns the database backend name.
func (s *MongoStore) Backend() string {
	return BackendMongo
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) List(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	cur, err := s.db.Collection(kind.Collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind.Collection, err)
	}
	defer cur.Close(ctx)

	records := []model.Record{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind.Collection, err)
		}
		records = append(records, recordFromDoc(kind, doc))
	}
	return records, cur.Err()
}

func (s *MongoStore) Create(ctx context.Context, kind model.Kind, key string) (model.Record, error) {
	id := primitive.NewObjectID()
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: kind.KeyField, Value: key},
		{Key: kind.CounterField, Value: int64(0)},
	}

	if _, err := s.db.Collection(kind.Collection).InsertOne(ctx, doc); err != nil {
		return model.Record{}, insertError(kind, err)
	}
	return model.NewRecord(kind, id.Hex(), key), nil
}

// insertError maps a unique index violation to ErrDuplicate.
func insertError(kind model.Kind, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return fmt.Errorf("insert %s: %w", kind.Collection, err)
}

func (s *MongoStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	res, err := s.db.Collection(kind.Collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind.Collection, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// idFilter matches a listed id. Documents written by other clients may
// carry a string _id, so a hex id matches either form.
func idFilter(id string) bson.D {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return bson.D{{Key: "_id", Value: id}}
	}
	return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, id}}}}}
}

// recordFromDoc converts a raw document. Counters written by other clients
// may be stored as int32, int64 or double.
func recordFromDoc(kind model.Kind, doc bson.M) model.Record {
	r := model.Record{Kind: kind}
	switch id := doc["_id"].(type) {
	case primitive.ObjectID:
		r.ID = id.Hex()
	case string:
		r.ID = id
	}
	r.Key, _ = doc[kind.KeyField].(string)
	switch n := doc[kind.CounterField].(type) {
	case int32:
		r.Count = int64(n)
	case int64:
		r.Count = n
	case float64:
		r.Count = int64(n)
	}
	return r
}
