package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// flexString accepts a JSON string or number. The storefront sends ids and
// prices either way depending on where the cart came from.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type cartItem struct {
	ProductID flexString `json:"id_producto"`
	UnitPrice flexString `json:"precio"`
	Quantity  flexString `json:"quantity"`
}

type userInfo struct {
	Email string `json:"email"`
	Name  string `json:"nombre"`
}

type paymentRequest struct {
	CartItems []cartItem `json:"cartItems"`
	UserID    flexString `json:"id_usuario"`
	UserInfo  userInfo   `json:"usuario_info"`
}

// createPayment turns the posted cart into a pending order and answers with
// the auto-submitting gateway form.
func (h *Handler) createPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   service.CodeInvalidRequest,
			"details": gin.H{"reason": "invalid request body"},
		})
		return
	}

	userID := strings.TrimSpace(string(req.UserID))
	if sub := tokenSubject(c); sub != "" && sub != userID {
		h.writeError(c, &service.AuthorizationError{Reason: "token subject does not match id_usuario"})
		return
	}

	lines := make([]service.CartLineInput, 0, len(req.CartItems))
	for _, it := range req.CartItems {
		lines = append(lines, service.CartLineInput{
			ProductID: string(it.ProductID),
			UnitPrice: string(it.UnitPrice),
			Quantity:  string(it.Quantity),
		})
	}

	res, err := h.checkout.Checkout(c.Request.Context(), service.CheckoutRequest{
		Lines: lines,
		Buyer: service.Buyer{
			UserID: userID,
			Email:  req.UserInfo.Email,
			Name:   req.UserInfo.Name,
		},
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := payu.RenderForm(&buf, res.Checkout); err != nil {
		h.logger.Error("Failed to render gateway form",
			zap.Int64("order_id", res.Order.OrderID),
			zap.Error(err))
		h.writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
