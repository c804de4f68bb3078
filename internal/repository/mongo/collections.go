package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// UserStore implements repository.UserStore
type UserStore struct {
	coll *mongo.Collection
}

// Create inserts a user. A duplicate email is ErrInvalidInput.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.coll.InsertOne(ctx, newUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: user %s: %v", repository.ErrInvalidInput, u.Email, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id)
}

// GetByEmail retrieves a user by email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email}, email)
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M, key string) (*models.User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", key, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u := doc.model()
	return &u, nil
}

// List returns users ordered by registration, skipping excludeEmail
func (s *UserStore) List(ctx context.Context, excludeEmail string) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "registration_date", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.coll.Find(ctx, bson.M{"email": bson.M{"$ne": excludeEmail}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.model())
	}
	return users, nil
}

// SetMaintenanceUrgency stores the user urgency; nil clears it
func (s *UserStore) SetMaintenanceUrgency(ctx context.Context, id string, urgency *float64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"maintenance_urgency": urgency}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user urgency: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// SessionStore implements repository.SessionStore
type SessionStore struct {
	coll *mongo.Collection
}

// Create inserts a session for an existing user
func (s *SessionStore) Create(ctx context.Context, sess *models.Session) error {
	_, err := s.coll.InsertOne(ctx, newSessionDoc(sess))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: session %s: %v", repository.ErrInvalidInput, sess.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (s *SessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var doc sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess := doc.model()
	return &sess, nil
}

// ListByUser returns a user's sessions, oldest first
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "start_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(docs))
	for _, d := range docs {
		sessions = append(sessions, d.model())
	}
	return sessions, nil
}

// Close sets the end time once. Closing again keeps the first end time.
func (s *SessionStore) Close(ctx context.Context, id string, end time.Time) (*models.Session, error) {
	var doc sessionDoc
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "end_time": nil},
		bson.M{"$set": bson.M{"end_time": end.UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// already closed, or unknown
		return s.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	sess := doc.model()
	return &sess, nil
}

// SaveScore stores the label counts and urgency of a stopped session
func (s *SessionStore) SaveScore(ctx context.Context, id string, score models.SessionScore) error {
	agg := score.Aggregate
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"count_aggressive":    agg.CountAggressive,
			"count_normal":        agg.CountNormal,
			"count_slow":          agg.CountSlow,
			"maintenance_urgency": score.Urgency,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to save session score: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// BehaviorStore implements repository.BehaviorStore
type BehaviorStore struct {
	coll     *mongo.Collection
	sessions *mongo.Collection
}

// InsertBatch checks that every referenced session exists, then inserts
// the batch. Standalone servers have no multi-document transactions, so a
// failed insert deletes whatever part of the batch landed.
func (s *BehaviorStore) InsertBatch(ctx context.Context, records []models.BehaviorRecord) error {
	if len(records) == 0 {
		return nil
	}

	sessionIDs := make(map[string]struct{})
	docs := make([]any, len(records))
	ids := make([]bson.ObjectID, len(records))
	for i, r := range records {
		if r.SessionID == "" || r.Label == "" {
			return fmt.Errorf("%w: record %d has no session or label", repository.ErrInvalidInput, i)
		}
		sessionIDs[r.SessionID] = struct{}{}
		d := newBehaviorDoc(r)
		docs[i] = d
		ids[i] = d.ID
	}

	keys := make([]string, 0, len(sessionIDs))
	for id := range sessionIDs {
		keys = append(keys, id)
	}
	n, err := s.sessions.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return fmt.Errorf("failed to check sessions: %w", err)
	}
	if int(n) != len(keys) {
		return fmt.Errorf("%w: batch references an unknown session", repository.ErrInvalidInput)
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		_, _ = s.coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}})
		return fmt.Errorf("failed to insert behaviors: %w", err)
	}
	return nil
}

// ListBySession returns a session's records ordered by timestamp
func (s *BehaviorStore) ListBySession(ctx context.Context, sessionID string) ([]models.BehaviorRecord, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list behaviors: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []behaviorDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode behaviors: %w", err)
	}

	records := make([]models.BehaviorRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.model())
	}
	return records, nil
}

var (
	_ repository.UserStore     = (*UserStore)(nil)
	_ repository.SessionStore  = (*SessionStore)(nil)
	_ repository.BehaviorStore = (*BehaviorStore)(nil)
)
