package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/analysis/aggregate"
	"github.com/jengzang/drivesense-backend/internal/database"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/ml"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

type scorerFunc func(models.SessionAggregate) (float64, error)

func (f scorerFunc) Score(_ context.Context, agg models.SessionAggregate) (float64, error) {
	return f(agg)
}

// urgency = number of aggressive records
var countAggressive = scorerFunc(func(agg models.SessionAggregate) (float64, error) {
	return float64(agg.CountAggressive), nil
})

func newStores(t *testing.T) repository.Stores {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{Path: filepath.Join(t.TempDir(), "svc.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := repository.NewSQLiteStores(db)
	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, u := range []models.User{
		{ID: "u1", Email: "alice@example.com", RegistrationDate: now},
		{ID: "u2", Email: "bob@example.com", RegistrationDate: now.Add(time.Second)},
		{ID: "admin", Email: models.AdminEmail, RegistrationDate: now},
	} {
		require.NoError(t, stores.Users.Create(context.Background(), &u))
	}
	return stores
}

func newSessionService(t *testing.T, stores repository.Stores, scorer SessionScorer) (*SessionService, *metrics.Metrics) {
	t.Helper()
	pool := ml.NewPool(1, 1, nil)
	t.Cleanup(pool.Close)
	m := metrics.New()
	return NewSessionService(stores, nil, scorer, pool, m, nil), m
}

func addRecords(t *testing.T, svc *SessionService, userID, sessionID string, labels ...models.Label) {
	t.Helper()
	for i, l := range labels {
		_, err := svc.AddBehavior(context.Background(), userID, models.BehaviorCreate{
			SessionID: sessionID,
			Timestamp: time.Unix(1700000000+int64(i), 0).UTC(),
			Label:     l,
			AccZ:      9.81,
		})
		require.NoError(t, err)
	}
}

func TestSessionService_StartStopScores(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	svc, m := newSessionService(t, stores, countAggressive)

	session, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, session.IsClosed())
	assert.NotEmpty(t, session.ID)

	addRecords(t, svc, "u1", session.ID,
		models.LabelAggressive, models.LabelAggressive, models.LabelAggressive,
		models.LabelNormal, models.LabelNormal)

	stopped, err := svc.Stop(ctx, "u1", session.ID)
	require.NoError(t, err)
	require.True(t, stopped.IsClosed())
	assert.Equal(t, 3, *stopped.CountAggressive)
	assert.Equal(t, 2, *stopped.CountNormal)
	assert.Equal(t, 0, *stopped.CountSlow)
	require.NotNil(t, stopped.MaintenanceUrgency)
	assert.Equal(t, 3.0, *stopped.MaintenanceUrgency)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsScored.WithLabelValues("scored")))

	// stopping again keeps the end time
	again, err := svc.Stop(ctx, "u1", session.ID)
	require.NoError(t, err)
	assert.True(t, stopped.EndTime.Equal(*again.EndTime))
}

func TestSessionService_ScorerFailureLeavesUrgencyUnset(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	svc, m := newSessionService(t, stores, scorerFunc(func(models.SessionAggregate) (float64, error) {
		return 0, errors.New("regressor offline")
	}))

	session, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	addRecords(t, svc, "u1", session.ID, models.LabelSlow)

	stopped, err := svc.Stop(ctx, "u1", session.ID)
	require.NoError(t, err)
	assert.Nil(t, stopped.MaintenanceUrgency)
	require.NotNil(t, stopped.CountSlow)
	assert.Equal(t, 1, *stopped.CountSlow)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsScored.WithLabelValues("failed")))
}

func TestSessionService_Ownership(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	svc, _ := newSessionService(t, stores, countAggressive)

	session, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Stop(ctx, "u2", session.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.Behaviors(ctx, "u2", session.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.AddBehavior(ctx, "u2", models.BehaviorCreate{SessionID: session.ID, Label: models.LabelSlow})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.Aggregate(ctx, "u2", session.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// still open for its owner
	s, err := stores.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, s.IsClosed())
}

func TestSessionService_AggregateRequiresClosedSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, newStores(t), countAggressive)

	session, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Aggregate(ctx, "u1", session.ID)
	assert.ErrorIs(t, err, aggregate.ErrSessionNotClosed)

	_, err = svc.Stop(ctx, "u1", session.ID)
	require.NoError(t, err)

	agg, err := svc.Aggregate(ctx, "u1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.RecordCount)

	_, err = svc.AddBehavior(ctx, "u1", models.BehaviorCreate{SessionID: session.ID, Label: models.LabelSlow})
	assert.ErrorIs(t, err, ErrSessionStopped)
}

func TestSessionService_AddBehaviorRejectsUnknownLabel(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	svc, _ := newSessionService(t, stores, countAggressive)

	session, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.AddBehavior(ctx, "u1", models.BehaviorCreate{SessionID: session.ID, Timestamp: time.Unix(1700000000, 0), Label: "RECKLESS"})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	records, err := stores.Behaviors.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	// a custom class mapping widens the accepted set
	pool := ml.NewPool(1, 0, nil)
	t.Cleanup(pool.Close)
	custom := NewSessionService(stores, []models.Label{"RECKLESS"}, countAggressive, pool, metrics.New(), nil)
	_, err = custom.AddBehavior(ctx, "u1", models.BehaviorCreate{SessionID: session.ID, Timestamp: time.Unix(1700000000, 0), Label: "RECKLESS"})
	assert.NoError(t, err)
	_, err = custom.AddBehavior(ctx, "u1", models.BehaviorCreate{SessionID: session.ID, Timestamp: time.Unix(1700000001, 0), Label: models.LabelSlow})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestSessionService_ListOrdered(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, newStores(t), countAggressive)

	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	first, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	second, err := svc.Start(ctx, "u1")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	other, err := svc.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUserUrgency(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Nil(t, UserUrgency(nil))
	assert.Nil(t, UserUrgency([]models.Session{{}, {}}))

	got := UserUrgency([]models.Session{
		{MaintenanceUrgency: f(1)},
		{},
		{MaintenanceUrgency: f(2)},
		{MaintenanceUrgency: f(6)},
	})
	require.NotNil(t, got)
	assert.Equal(t, 3.0, *got)
}

func TestReportService_UpdateMaintenance(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	sessions, _ := newSessionService(t, stores, countAggressive)
	report := NewReportService(stores, nil)

	// no scored sessions yet
	u, err := report.UpdateMaintenance(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, u.MaintenanceUrgency)

	a, err := sessions.Start(ctx, "u1")
	require.NoError(t, err)
	addRecords(t, sessions, "u1", a.ID, models.LabelAggressive, models.LabelAggressive)
	_, err = sessions.Stop(ctx, "u1", a.ID)
	require.NoError(t, err)

	b, err := sessions.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = sessions.Stop(ctx, "u1", b.ID)
	require.NoError(t, err)

	// unscored open session does not count
	_, err = sessions.Start(ctx, "u1")
	require.NoError(t, err)

	u, err = report.UpdateMaintenance(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.MaintenanceUrgency)
	assert.Equal(t, 1.0, *u.MaintenanceUrgency)

	_, err = report.UpdateMaintenance(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	svc := NewUserService(stores)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, models.AdminEmail, u.Email)
	}

	_, err = svc.Sessions(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := svc.Sessions(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}
