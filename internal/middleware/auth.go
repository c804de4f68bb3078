package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

const userContextKey = "user"

// Auth resolves the bearer token to a stored user. Websocket clients
// that cannot set headers may pass the token as ?token=.
func Auth(verifier *auth.Verifier, users repository.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.Verify(bearerToken(c))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid credentials", err)
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusUnauthorized, "Invalid credentials", errors.New("unknown user"))
			return
		}
		if err != nil {
			response.InternalError(c, "Failed to load user", err)
			return
		}

		c.Set(userContextKey, user)
		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// CurrentUser returns the user set by Auth, or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}
