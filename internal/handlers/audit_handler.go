package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/middleware"
	"github.com/weavetrack/erp-api/internal/services"
)

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// @Summary Recent Audit Entries
// @Description Audit entries of the current company logged in the last N hours
// @Tags Audit
// @Produce json
// @Param hours query int false "Window in hours" default(24)
// @Param logType query string false "Filter by log type"
// @Param entityType query string false "Filter by entity type"
// @Param limit query int false "Max entries" default(50)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs/recent [get]
func (h *AuditHandler) Recent(c *gin.Context) {
	fields := map[string]string{}
	hours := parseIntQuery(c, "hours", fields)
	filter := services.AuditFilter{
		CompanyID:  middleware.GetCompanyID(c),
		LogType:    firstQuery(c, "logType", "log_type"),
		EntityType: firstQuery(c, "entityType", "entity_type"),
		Limit:      parseIntQuery(c, "limit", fields),
	}
	if len(fields) > 0 {
		fail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	entries, err := h.auditService.QueryRecent(c.Request.Context(), filter, hours)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, entries, "")
}

type ArchiveRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1,max=500"`
}

// @Summary Archive Audit Entries
// @Description Flag audit entries as archived. Entries are never deleted here.
// @Tags Audit
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs/archive [post]
func (h *AuditHandler) Archive(c *gin.Context) {
	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	archived, err := h.auditService.Archive(c.Request.Context(), middleware.GetCompanyID(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"archived": archived}, "Audit entries archived")
}
