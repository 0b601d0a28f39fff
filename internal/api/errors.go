package api

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorStatus maps the service error taxonomy onto HTTP.
func errorStatus(err error) int {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		ae *service.AuthorizationError
		ce *service.ConflictError
		ue *service.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Code == service.CodeProductNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ae):
		return http.StatusForbidden
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails is what the storefront may see about a failure. Storage and
// upstream errors carry nothing.
func errorDetails(err error) gin.H {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		d := gin.H{"field": ve.Field, "reason": ve.Reason}
		if ve.Line >= 0 {
			d["line"] = ve.Line
		}
		return d
	case errors.As(err, &nf):
		return gin.H{"kind": nf.Kind, "ids": nf.IDs}
	default:
		return nil
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	body := gin.H{"error": service.ErrorCode(err)}
	if d := errorDetails(err); d != nil {
		body["details"] = d
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, body)
}
