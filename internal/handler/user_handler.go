package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/middleware"
	"github.com/jengzang/drivesense-backend/internal/service"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

// UserHandler handles HTTP requests for users
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// List handles GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		fail(c, "Failed to list users", err)
		return
	}

	response.Success(c, users)
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(c *gin.Context) {
	response.Success(c, middleware.CurrentUser(c))
}

// Sessions handles GET /api/users/:id/sessions
func (h *UserHandler) Sessions(c *gin.Context) {
	sessions, err := h.service.Sessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, "Failed to list user sessions", err)
		return
	}

	response.Success(c, sessions)
}
