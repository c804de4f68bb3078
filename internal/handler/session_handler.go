package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/middleware"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/service"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

// SessionHandler handles HTTP requests for driving sessions
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	user := middleware.CurrentUser(c)

	session, err := h.service.Start(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, "Failed to start session", err)
		return
	}

	response.Created(c, session)
}

// Stop handles PATCH /api/sessions/stop
func (h *SessionHandler) Stop(c *gin.Context) {
	var req models.SessionStop
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	session, err := h.service.Stop(c.Request.Context(), middleware.CurrentUser(c).ID, req.SessionID)
	if err != nil {
		fail(c, "Failed to stop session", err)
		return
	}

	response.Success(c, session)
}

// List handles GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.service.List(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		fail(c, "Failed to list sessions", err)
		return
	}

	response.Success(c, sessions)
}

// Behaviors handles GET /api/sessions/:id/behaviors
func (h *SessionHandler) Behaviors(c *gin.Context) {
	records, err := h.service.Behaviors(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		fail(c, "Failed to get behaviors", err)
		return
	}

	response.Success(c, records)
}

// AddBehavior handles POST /api/sessions/behaviors
func (h *SessionHandler) AddBehavior(c *gin.Context) {
	var req models.BehaviorCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	record, err := h.service.AddBehavior(c.Request.Context(), middleware.CurrentUser(c).ID, req)
	if err != nil {
		fail(c, "Failed to add behavior", err)
		return
	}

	response.Created(c, record)
}

// Aggregate handles GET /api/sessions/:id/aggregate
func (h *SessionHandler) Aggregate(c *gin.Context) {
	agg, err := h.service.Aggregate(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		fail(c, "Failed to aggregate session", err)
		return
	}

	response.Success(c, agg)
}
