package docdb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo is the MongoDB implementation of Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to the MongoDB instance at uri and returns a store
// over the named database. It pings the server so that misconfiguration
// fails at startup, not on the first request.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("cannot reach document store: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Find implements Store.
func (m *Mongo) Find(ctx context.Context, collection string, filter Document, opt FindOptions) ([]Document, error) {
	fo := options.Find()
	if len(opt.Sort) > 0 {
		fo.SetSort(sortToBSON(opt.Sort))
	}
	if opt.Limit > 0 {
		fo.SetLimit(opt.Limit)
	}
	if opt.Skip > 0 {
		fo.SetSkip(opt.Skip)
	}
	if filter == nil {
		filter = Document{}
	}
	cursor, err := m.db.Collection(collection).Find(ctx, bson.M(filter), fo)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindOne implements Store.
func (m *Mongo) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	var doc Document
	err := m.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertOne implements Store.
func (m *Mongo) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	_, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrDuplicateKey
	}
	if err != nil {
		return "", err
	}
	id, _ := doc["_id"].(string)
	return id, nil
}

// UpdateOne implements Store.
func (m *Mongo) UpdateOne(ctx context.Context, collection string, filter Document, set Document) (int64, int64, error) {
	result, err := m.db.Collection(collection).UpdateOne(ctx, bson.M(filter), bson.M{"$set": bson.M(set)})
	if mongo.IsDuplicateKeyError(err) {
		return 0, 0, ErrDuplicateKey
	}
	if err != nil {
		return 0, 0, err
	}
	return result.MatchedCount, result.ModifiedCount, nil
}

// DeleteOne implements Store.
func (m *Mongo) DeleteOne(ctx context.Context, collection string, filter Document) (int64, error) {
	result, err := m.db.Collection(collection).DeleteOne(ctx, bson.M(filter))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Aggregate implements Store.
func (m *Mongo) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	stages := make([]bson.M, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = bson.M(stage)
	}
	cursor, err := m.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CreateIndex implements Store.
func (m *Mongo) CreateIndex(ctx context.Context, collection string, fields []string, unique bool) error {
	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	model := mongo.IndexModel{Keys: keys}
	if unique {
		model.Options = options.Index().SetUnique(true)
	}
	_, err := m.db.Collection(collection).Indexes().CreateOne(ctx, model)
	return err
}

func sortToBSON(sort []SortField) bson.D {
	d := bson.D{}
	for _, s := range sort {
		d = append(d, bson.E{Key: s.Field, Value: s.Direction})
	}
	return d
}
