// Package projection stores the AccountCollection read model.  Documents
// are keyed by account id and written only after the relational
// transaction that produced them has committed.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/edusmart-auth/internal/model"
)

// ErrNotFound is returned when no document has the requested key.
var ErrNotFound = errors.New("projection: document not found")

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(c *mongo.Collection) *MongoStore {
	return &MongoStore{collection: c}
}

// Connect dials uri, pings, and returns the client together with a store
// on database.collection.  The caller owns client.Disconnect.
func Connect(ctx context.Context, uri, database, collection string) (*mongo.Client, *MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	store := NewMongoStore(client.Database(database).Collection(collection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, store, nil
}

// EnsureIndexes creates the email lookup index.  It is idempotent.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("ix_email"),
	})
	if err != nil {
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}

// Upsert replaces the document with doc.AccountID, inserting it if absent.
func (m *MongoStore) Upsert(ctx context.Context, doc model.AccountCollection) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.AccountID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo upsert %s: %w", doc.AccountID, err)
	}
	return nil
}

// Delete removes the document; deleting a missing one is not an error.
func (m *MongoStore) Delete(ctx context.Context, accountID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": accountID}); err != nil {
		return fmt.Errorf("mongo delete %s: %w", accountID, err)
	}
	return nil
}

func (m *MongoStore) FindByAccountID(ctx context.Context, accountID string) (model.AccountCollection, error) {
	return m.findBy(ctx, bson.M{"_id": accountID})
}

// FindActiveByEmail returns the active document for email.
func (m *MongoStore) FindActiveByEmail(ctx context.Context, email string) (model.AccountCollection, error) {
	return m.findBy(ctx, bson.M{"email": email, "isActive": true})
}

func (m *MongoStore) findBy(ctx context.Context, filter bson.M) (model.AccountCollection, error) {
	var doc model.AccountCollection
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.AccountCollection{}, ErrNotFound
	}
	if err != nil {
		return model.AccountCollection{}, fmt.Errorf("mongo find: %w", err)
	}
	return doc, nil
}
