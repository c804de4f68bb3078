package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/middleware"
	"github.com/jengzang/drivesense-backend/internal/service"
	"github.com/jengzang/drivesense-backend/pkg/response"
)

// ReportHandler handles maintenance reports
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(service *service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// UpdateMaintenance handles POST /api/report/update_maintenance
func (h *ReportHandler) UpdateMaintenance(c *gin.Context) {
	user, err := h.service.UpdateMaintenance(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		fail(c, "Failed to update maintenance urgency", err)
		return
	}

	response.Success(c, user)
}
