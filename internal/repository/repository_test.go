package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/database"
	"github.com/jengzang/drivesense-backend/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, stores Stores, id, email string) *models.User {
	t.Helper()
	u := &models.User{ID: id, Email: email, FullName: "Test " + id, RegistrationDate: t0}
	require.NoError(t, stores.Users.Create(context.Background(), u))
	return u
}

func seedSession(t *testing.T, stores Stores, id, userID string, start time.Time) *models.Session {
	t.Helper()
	s := &models.Session{ID: id, UserID: userID, StartTime: start}
	require.NoError(t, stores.Sessions.Create(context.Background(), s))
	return s
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	stores := NewSQLiteStores(openTestDB(t))

	seedUser(t, stores, "u1", "alice@example.com")
	seedUser(t, stores, "admin", models.AdminEmail)

	got, err := stores.Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, got.RegistrationDate.Equal(t0))
	assert.Nil(t, got.MaintenanceUrgency)

	byEmail, err := stores.Users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = stores.Users.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	err = stores.Users.Create(ctx, &models.User{ID: "u2", Email: "alice@example.com", RegistrationDate: t0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	users, err := stores.Users.List(ctx, models.AdminEmail)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)

	urgency := 0.75
	require.NoError(t, stores.Users.SetMaintenanceUrgency(ctx, "u1", &urgency))
	got, err = stores.Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.MaintenanceUrgency)
	assert.Equal(t, 0.75, *got.MaintenanceUrgency)

	require.NoError(t, stores.Users.SetMaintenanceUrgency(ctx, "u1", nil))
	got, err = stores.Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got.MaintenanceUrgency)

	assert.ErrorIs(t, stores.Users.SetMaintenanceUrgency(ctx, "ghost", nil), ErrNotFound)
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	stores := NewSQLiteStores(openTestDB(t))
	seedUser(t, stores, "u1", "alice@example.com")

	seedSession(t, stores, "s2", "u1", t0.Add(time.Hour))
	seedSession(t, stores, "s1", "u1", t0)

	list, err := stores.Sessions.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)
	assert.False(t, list[0].IsClosed())

	end := t0.Add(30 * time.Minute)
	closed, err := stores.Sessions.Close(ctx, "s1", end)
	require.NoError(t, err)
	require.True(t, closed.IsClosed())
	assert.True(t, closed.EndTime.Equal(end))

	// second close keeps the first end time
	again, err := stores.Sessions.Close(ctx, "s1", end.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.EndTime.Equal(end))

	_, err = stores.Sessions.Close(ctx, "ghost", end)
	assert.ErrorIs(t, err, ErrNotFound)

	urgency := 2.5
	require.NoError(t, stores.Sessions.SaveScore(ctx, "s1", models.SessionScore{
		Aggregate: models.SessionAggregate{CountAggressive: 3, CountNormal: 2, CountSlow: 0},
		Urgency:   &urgency,
	}))

	s, err := stores.Sessions.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s.CountAggressive)
	assert.Equal(t, 3, *s.CountAggressive)
	assert.Equal(t, 2, *s.CountNormal)
	assert.Equal(t, 0, *s.CountSlow)
	require.NotNil(t, s.MaintenanceUrgency)
	assert.Equal(t, 2.5, *s.MaintenanceUrgency)

	assert.ErrorIs(t, stores.Sessions.SaveScore(ctx, "ghost", models.SessionScore{}), ErrNotFound)
}

func TestSessionRepository_UnknownUser(t *testing.T) {
	stores := NewSQLiteStores(openTestDB(t))

	err := stores.Sessions.Create(context.Background(), &models.Session{ID: "s1", UserID: "ghost", StartTime: t0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBehaviorRepository(t *testing.T) {
	ctx := context.Background()
	stores := NewSQLiteStores(openTestDB(t))
	seedUser(t, stores, "u1", "alice@example.com")
	seedSession(t, stores, "s1", "u1", t0)

	records := []models.BehaviorRecord{
		{SessionID: "s1", Timestamp: t0.Add(2 * time.Second), Label: models.LabelSlow, AccX: 2},
		{SessionID: "s1", Timestamp: t0.Add(1 * time.Second), Label: models.LabelAggressive, AccX: 1, GyroZ: -0.5},
	}
	require.NoError(t, stores.Behaviors.InsertBatch(ctx, records))
	assert.NotZero(t, records[0].ID)

	got, err := stores.Behaviors.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.LabelAggressive, got[0].Label)
	assert.Equal(t, -0.5, got[0].GyroZ)
	assert.True(t, got[0].Timestamp.Equal(t0.Add(time.Second)))
	assert.Equal(t, models.LabelSlow, got[1].Label)

	empty, err := stores.Behaviors.ListBySession(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBehaviorRepository_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	stores := NewSQLiteStores(openTestDB(t))
	seedUser(t, stores, "u1", "alice@example.com")
	seedSession(t, stores, "s1", "u1", t0)

	err := stores.Behaviors.InsertBatch(ctx, []models.BehaviorRecord{
		{SessionID: "s1", Timestamp: t0, Label: models.LabelNormal},
		{SessionID: "missing", Timestamp: t0, Label: models.LabelNormal},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := stores.Behaviors.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
