package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore stores records in a MongoDB collection with a unique index on id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongoStore connects to the endpoint URI. A non-empty key is used as
// the password of the URI's user.
func OpenMongoStore(ctx context.Context, p Params) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(p.Endpoint).
		SetRetryWrites(false).
		SetRetryReads(false).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if p.Key != "" {
		u, err := url.Parse(p.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		opts.SetAuth(options.Credential{Username: u.User.Username(), Password: p.Key})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	fail := func(err error) (*MongoStore, error) {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fail(fmt.Errorf("mongo ping: %w", err))
	}

	db := client.Database(p.Database)
	if err := db.CreateCollection(ctx, p.Container); err != nil && !isNamespaceExists(err) {
		return fail(fmt.Errorf("create collection %s: %w", p.Container, err))
	}
	coll := db.Collection(p.Container)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: IDField, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fail(fmt.Errorf("create id index: %w", err))
	}
	return &MongoStore{client: client, collection: coll}, nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists"
}

func (s *MongoStore) Create(ctx context.Context, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return ErrMissingID
	}
	_, err := s.collection.InsertOne(ctx, bson.M(rec.Clone()))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return err
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]Record, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]Record, 0, len(docs))
	for _, d := range docs {
		result = append(result, Record(d))
	}
	return result, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
