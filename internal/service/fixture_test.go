package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/store/storetest"
	"storefront-checkout/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAPIKey     = "4Vj8eK4rloUd272L48hsrarnUA"
	testMerchantID = "508029"
	testUserID     = "user-1"
)

type fixture struct {
	store     *storetest.MemStore
	events    *memEvents
	kv        *memKV
	assembler *CartAssembler
	orders    *OrderService
	payments  *PaymentService
	inventory *InventoryService
	checkout  *CheckoutService
	builder   *payu.Builder
	signer    payu.Signer
}

func newFixture(t *testing.T, opts OrderOptions) *fixture {
	t.Helper()
	util.SetLogger(zap.NewNop())

	st := storetest.NewMemStore()
	st.AddUser(models.User{ID: testUserID, Email: "ana@example.com", DisplayName: "Ana Gómez"})
	st.AddProduct(models.Product{ID: 7, Name: "Filtro de aceite", Price: decimal.RequireFromString("19.99"), Stock: 10})
	st.AddProduct(models.Product{ID: 8, Name: "Pastillas de freno", Price: decimal.RequireFromString("45.50"), Stock: 1})

	events := &memEvents{}
	kv := newMemKV()
	builder := payu.NewBuilder(payu.Config{
		MerchantID:      testMerchantID,
		AccountID:       "512321",
		APIKey:          testAPIKey,
		GatewayURL:      "https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/",
		ResponseURL:     "http://localhost:3001/respuesta",
		ConfirmationURL: "http://localhost:3001/confirmacion",
		Test:            true,
		Algorithm:       payu.AlgorithmMD5,
	})

	assembler := NewCartAssembler(st, decimal.RequireFromString("5.99"))
	orders := NewOrderService(st, events, kv, opts)
	return &fixture{
		store:     st,
		events:    events,
		kv:        kv,
		assembler: assembler,
		orders:    orders,
		payments:  NewPaymentService(st, builder.Signer(), testMerchantID, events, kv, time.Second),
		inventory: NewInventoryService(st),
		checkout:  NewCheckoutService(assembler, orders, builder),
		builder:   builder,
		signer:    builder.Signer(),
	}
}

// placeOrder prices the lines (two of product 7 by default) and persists a pending order.
func (f *fixture) placeOrder(t *testing.T, lines ...CartLineInput) *CreatedOrder {
	t.Helper()
	if len(lines) == 0 {
		lines = []CartLineInput{{ProductID: "7", UnitPrice: "19.99", Quantity: "2"}}
	}
	ctx := context.Background()
	cart, err := f.assembler.Assemble(ctx, testUserID, lines)
	require.NoError(t, err)
	created, err := f.orders.CreateOrder(ctx, cart, Buyer{UserID: testUserID})
	require.NoError(t, err)
	return created
}

// confirmation builds a correctly signed notification for an order.
func (f *fixture) confirmation(orderID int64, state, value string) payu.Confirmation {
	ref := payu.ReferenceCode("ORD", orderID, "a1b2c3d4")
	n := payu.Confirmation{
		MerchantID:    testMerchantID,
		ReferenceSale: ref,
		StatePol:      state,
		Value:         value,
		Currency:      "COP",
		TransactionID: "7f1e9a2c-0000-4000-8000-000000000001",
		ReferencePol:  "845123456",
		PaymentMethod: "VISA",
		CardNumber:    "************1111",
		Extra1:        testUserID,
		Extra2:        strconv.FormatInt(orderID, 10),
	}
	n.Sign = f.signer.SignConfirmation(testMerchantID, ref, value, "COP", state)
	return n
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustParseInt(t *testing.T, s string) int64 {
	t.Helper()
	v, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return v
}
