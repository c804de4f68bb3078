// Package mongo implements the repository stores on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/jengzang/drivesense-backend/internal/repository"
)

const (
	usersCollection     = "users"
	sessionsCollection  = "sessions"
	behaviorsCollection = "behaviors"
)

// Store owns the client and the three collections
type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	sessions  *mongo.Collection
	behaviors *mongo.Collection
}

// Connect dials MongoDB, verifies the connection and ensures indexes
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		users:     db.Collection(usersCollection),
		sessions:  db.Collection(sessionsCollection),
		behaviors: db.Collection(behaviorsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "start_time", Value: 1},
		},
	}); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	if _, err := s.behaviors.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "timestamp", Value: 1},
		},
	}); err != nil {
		return fmt.Errorf("failed to create behavior indexes: %w", err)
	}
	return nil
}

// Stores exposes the collections behind the repository interfaces
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Users:     &UserStore{coll: s.users},
		Sessions:  &SessionStore{coll: s.sessions},
		Behaviors: &BehaviorStore{coll: s.behaviors, sessions: s.sessions},
	}
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
