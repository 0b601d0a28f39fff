package service

import (
	"net/url"
	"strings"
	"testing"

	"storefront-checkout/internal/payu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReturnView(t *testing.T) {
	tests := []struct {
		name    string
		in      payu.Return
		status  string
		orderID string
	}{
		{
			name:    "numeric approved",
			in:      payu.Return{TransactionState: "4", ReferenceCode: "ORD-12-abcd1234", TxValue: "45.97"},
			status:  "aprobado",
			orderID: "12",
		},
		{
			name:    "textual declined",
			in:      payu.Return{LapTransactionState: "DECLINED", ReferenceCode: "ORD-3-00000000"},
			status:  "rechazado",
			orderID: "3",
		},
		{
			name:    "pending",
			in:      payu.Return{TransactionState: "7", ReferenceCode: "ORD-5-ffffffff"},
			status:  "pendiente",
			orderID: "5",
		},
		{
			name:    "unknown state keeps raw reference",
			in:      payu.Return{TransactionState: "42", ReferenceCode: "weird"},
			status:  payu.DisplayUnknown,
			orderID: "weird",
		},
		{
			name:   "nothing at all",
			in:     payu.Return{},
			status: payu.DisplayUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := BuildReturnView(tt.in)
			assert.Equal(t, tt.status, view.Status)
			assert.Equal(t, tt.orderID, view.OrderID)
			assert.NotEmpty(t, view.Message)
		})
	}
}

func TestReturnViewRedirectURL(t *testing.T) {
	view := BuildReturnView(payu.Return{
		TransactionState: "4",
		ReferenceCode:    "ORD-12-abcd1234",
		TxValue:          "45.97",
		TransactionID:    "tx-1",
		ProcessingDate:   "2024-05-01",
	})

	raw := view.RedirectURL("https://tienda.example.com/")
	require.True(t, strings.HasPrefix(raw, "https://tienda.example.com/confirmacion?"), raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "aprobado", q.Get("status"))
	assert.Equal(t, "12", q.Get("order"))
	assert.Equal(t, "45.97", q.Get("amount"))
	assert.Equal(t, "2024-05-01", q.Get("date"))
	assert.Equal(t, "tx-1", q.Get("transaction"))
	assert.NotEmpty(t, q.Get("message"))
}
