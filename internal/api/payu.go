package api

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const (
	confirmationOK       = "OK"
	confirmationBadSign  = "Firma no válida"
	confirmationInternal = "Error interno"
)

// confirmation is the PayU server-to-server webhook. Only a rejected
// signature answers 403; every other failure answers 500 so the gateway
// retries.
func (h *Handler) confirmation(c *gin.Context) {
	var n payu.Confirmation
	if err := c.ShouldBindWith(&n, binding.Form); err != nil {
		h.logger.Warn("Malformed confirmation body", zap.Error(err))
		c.String(http.StatusInternalServerError, confirmationInternal)
		return
	}

	_, err := h.payments.HandleConfirmation(c.Request.Context(), n)
	if err != nil {
		var ae *service.AuthorizationError
		if errors.As(err, &ae) {
			c.String(http.StatusForbidden, confirmationBadSign)
			return
		}
		c.String(http.StatusInternalServerError, confirmationInternal)
		return
	}

	c.String(http.StatusOK, confirmationOK)
}

// paymentReturn is the browser coming back from the gateway. It never
// touches stored state; the page it redirects to reads the order through
// the read endpoints.
func (h *Handler) paymentReturn(c *gin.Context) {
	var r payu.Return
	if err := c.ShouldBindQuery(&r); err != nil {
		h.logger.Warn("Malformed return query", zap.Error(err))
	}

	view := service.BuildReturnView(r)
	c.Redirect(http.StatusFound, view.RedirectURL(h.opts.FrontendURL))
}
