package handlers

import (
	"errors"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/weavetrack/erp-api/internal/services"
)

// respond writes the success envelope
func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
		"message": message,
	})
}

// respondPage writes the success envelope with pagination
func respondPage(c *gin.Context, data interface{}, page int, pages, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"current": page,
			"pages":   pages,
			"total":   total,
		},
	})
}

func fail(c *gin.Context, status int, message string, fields map[string]string) {
	body := gin.H{
		"success": false,
		"message": message,
	}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

// respondError maps a service error to its status code. Server faults are
// reported without exposing internals.
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, "Validation failed", ve.Fields)
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, "Batch not found", nil)
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, "Batch was modified by another request, reload and retry", nil)
	default:
		_ = c.Error(err)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		fail(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}
