package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/analysis/aggregate"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/internal/service"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

// fail maps domain errors onto status codes
func fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Error(c, http.StatusNotFound, message, err)
	case errors.Is(err, repository.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, message, err)
	case errors.Is(err, aggregate.ErrSessionNotClosed), errors.Is(err, service.ErrSessionStopped):
		response.Error(c, http.StatusConflict, message, err)
	default:
		response.InternalError(c, message, err)
	}
}
