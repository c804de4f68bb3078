package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/config"
	"github.com/jengzang/drivesense-backend/internal/models"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "nested", "open.db")}

	stores, closeFn, err := Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer closeFn(ctx)

	u := &models.User{ID: "u1", Email: "a@example.com", RegistrationDate: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, stores.Users.Create(ctx, u))

	got, err := stores.Users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{DBDriver: "csv"}, slog.Default())
	assert.Error(t, err)
}
