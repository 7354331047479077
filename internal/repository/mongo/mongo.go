// Package mongo implements repository.UserRepository on a MongoDB collection.
//
// WHEN IS THIS USED?
// server.New picks this backend when MONGO_URI is set, otherwise it falls back
// to the embedded sqlite store. Both must behave identically as seen from the
// service layer, so the rules in repository.UserRepository apply here too.
//
// DOCUMENT LAYOUT:
// One document per user in the "users" collection. The wishlist is an array
// field on the same document, which lets $addToSet and $pull give us
// idempotent add/remove in a single round trip.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// Store holds the client and the users collection handle.
type Store struct {
	client *mongodrv.Client
	users  *mongodrv.Collection
}

// New connects to uri, pings the primary and makes sure the indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongodrv.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := &Store{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}

	return s, nil
}

// Close disconnects the client, waiting for in-flight operations up to ctx.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ensureIndexes creates the indexes that carry the store's invariants.
//
// UNIQUENESS LIVES IN THE INDEXES:
// email is unique, so two concurrent registrations cannot both succeed.
// google_id is unique AND sparse: documents without the field (local
// accounts) are left out of the index entirely, so any number of them can
// coexist while a Google identity can only ever be bridged once.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongodrv.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("google_id_unique_sparse"),
		},
		{
			Keys:    bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reset_token_hash"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	})
	return err
}
