package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) Create(context.Context, *models.User) error { return nil }

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(context.Context, string) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) List(context.Context, string) ([]models.User, error) { return nil, nil }

func (f *fakeUsers) SetMaintenanceUrgency(context.Context, string, *float64) error { return nil }

func authRouter(users repository.UserStore, verifier *auth.Verifier) *gin.Engine {
	r := gin.New()
	r.Use(Auth(verifier, users))
	r.GET("/me", func(c *gin.Context) {
		fromCtx, _ := auth.UserFromContext(c.Request.Context())
		response.Success(c, gin.H{"gin": CurrentUser(c).ID, "ctx": fromCtx.ID})
	})
	return r
}

func TestAuth(t *testing.T) {
	verifier := auth.NewVerifier("secret", "")
	users := &fakeUsers{users: map[string]*models.User{"u1": {ID: "u1"}}}
	r := authRouter(users, verifier)

	valid, err := verifier.Mint("u1", time.Minute)
	require.NoError(t, err)
	ghost, err := verifier.Mint("ghost", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK},
		{"query token", "", "?token=" + valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad scheme", "Basic " + valid, "", http.StatusUnauthorized},
		{"unknown user", "Bearer " + ghost, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)

			if tt.want == http.StatusOK {
				var body struct {
					Data map[string]string `json:"data"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, map[string]string{"gin": "u1", "ctx": "u1"}, body.Data)
			}
		})
	}
}

func TestAuth_StoreFailure(t *testing.T) {
	verifier := auth.NewVerifier("secret", "")
	r := authRouter(&fakeUsers{err: errors.New("disk on fire")}, verifier)

	tok, err := verifier.Mint("u1", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimit_KeysByUser(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id != "" {
			c.Set(userContextKey, &models.User{ID: id})
		}
	})
	r.Use(UserRateLimit(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1"))
	// same IP, different user
	assert.Equal(t, http.StatusNoContent, do("u2"))
	// anonymous requests are left to the IP limiter
	assert.Equal(t, http.StatusNoContent, do(""))
	assert.Equal(t, http.StatusNoContent, do(""))
}

func TestRateLimit_KeysByIP(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.2:1000"))
}

func TestLogger_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := metrics.New()

	r := gin.New()
	r.Use(Logger(logger, m), Recovery(logger))
	r.GET("/ok/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	for _, path := range []string{"/ok/1", "/ok/2", "/panic"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/ok/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/panic", "500")))
	assert.Contains(t, buf.String(), `"path":"/ok/2"`)
	assert.Contains(t, buf.String(), fmt.Sprintf(`"panic":%q`, "boom"))
}
