package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/store/storetest"
	"storefront-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAPIKey     = "4Vj8eK4rloUd272L48hsrarnUA"
	testMerchantID = "508029"
	testUserID     = "user-1"
	testJWTSecret  = "s3cret"
	testAdminToken = "admin-token"
)

type testServer struct {
	router *gin.Engine
	store  *storetest.MemStore
	signer payu.Signer
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())

	st := storetest.NewMemStore()
	st.AddUser(models.User{ID: testUserID, Email: "ana@example.com", DisplayName: "Ana Gómez"})
	st.AddProduct(models.Product{ID: 7, Name: "Filtro de aceite", Price: decimal.RequireFromString("19.99"), Stock: 10})

	builder := payu.NewBuilder(payu.Config{
		MerchantID:      testMerchantID,
		AccountID:       "512321",
		APIKey:          testAPIKey,
		GatewayURL:      "https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/",
		ResponseURL:     "http://localhost:3001/respuesta",
		ConfirmationURL: "http://localhost:3001/confirmacion",
		Test:            true,
	})
	orders := service.NewOrderService(st, nil, nil, service.OrderOptions{Timeout: 5 * time.Second})
	checkout := service.NewCheckoutService(service.NewCartAssembler(st, decimal.RequireFromString("5.99")), orders, builder)
	payments := service.NewPaymentService(st, builder.Signer(), testMerchantID, nil, nil, time.Second)

	if opts.FrontendURL == "" {
		opts.FrontendURL = "http://localhost:5173"
	}
	router := gin.New()
	NewHandler(checkout, orders, payments, st, opts).SetupRoutes(router)
	return &testServer{router: router, store: st, signer: builder.Signer()}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postPayment(body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.do(req)
}

func (s *testServer) postConfirmation(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/confirmacion", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testServer) confirmationForm(orderID int64, state, value string) url.Values {
	ref := payu.ReferenceCode("ORD", orderID, "0badcafe")
	return url.Values{
		"merchant_id":          {testMerchantID},
		"reference_sale":       {ref},
		"state_pol":            {state},
		"response_message_pol": {"APPROVED"},
		"value":                {value},
		"currency":             {"COP"},
		"transaction_id":       {"tx-0001"},
		"payment_method_name":  {"VISA"},
		"cc_number":            {"411111******1111"},
		"extra1":               {testUserID},
		"extra2":               {strconv.FormatInt(orderID, 10)},
		"sign":                 {s.signer.SignConfirmation(testMerchantID, ref, value, "COP", state)},
	}
}

const scenarioCart = `{"cartItems":[{"id_producto":7,"precio":19.99,"quantity":2}],"id_usuario":"user-1","usuario_info":{"email":"ana@example.com","nombre":"Ana Gómez"}}`

func TestPaymentRendersGatewayForm(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.postPayment(scenarioCart, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, `action="https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/"`)
	assert.Contains(t, body, `name="amount" value="45.97"`)
	assert.Contains(t, body, `name="extra1" value="user-1"`)
	assert.Contains(t, body, `name="extra2" value="1"`)
	assert.Contains(t, body, "document.forms['payu'].submit()")

	order, ok := s.store.Order(1)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "45.97", order.Total.StringFixed(2))
}

func TestPaymentAcceptsStringFields(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.postPayment(`{"cartItems":[{"id_producto":"7","precio":"19.99","quantity":"2"}],"id_usuario":"user-1"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestPaymentErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"cartItems":`, http.StatusBadRequest, service.CodeInvalidRequest},
		{"empty cart", `{"cartItems":[],"id_usuario":"user-1"}`, http.StatusBadRequest, service.CodeEmptyCart},
		{"bad quantity", `{"cartItems":[{"id_producto":7,"precio":19.99,"quantity":-1}],"id_usuario":"user-1"}`, http.StatusBadRequest, service.CodeInvalidItem},
		{"unknown product", `{"cartItems":[{"id_producto":999,"precio":1,"quantity":1}],"id_usuario":"user-1"}`, http.StatusNotFound, service.CodeProductNotFound},
		{"unknown user", `{"cartItems":[{"id_producto":7,"precio":1,"quantity":1}],"id_usuario":"ghost"}`, http.StatusNotFound, service.CodeUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{})
			w := s.postPayment(tt.body, nil)

			assert.Equal(t, tt.status, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp["error"])
			assert.Zero(t, s.store.OrderCount())
		})
	}
}

func TestPaymentUnknownProductNamesID(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.postPayment(`{"cartItems":[{"id_producto":999,"precio":1,"quantity":1}],"id_usuario":"user-1"}`, nil)

	var resp struct {
		Error   string `json:"error"`
		Details struct {
			Line   int    `json:"line"`
			Field  string `json:"field"`
			Reason string `json:"reason"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "id_producto", resp.Details.Field)
	assert.Contains(t, resp.Details.Reason, "999")
}

func TestPaymentStorageFailureHidesDetail(t *testing.T) {
	s := newTestServer(t, Options{})
	s.store.FailOn["InsertOrder"] = assert.AnError

	w := s.postPayment(scenarioCart, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	assert.Contains(t, w.Body.String(), service.CodeInternal)
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestPaymentBearerToken(t *testing.T) {
	s := newTestServer(t, Options{JWTSecret: testJWTSecret})

	w := s.postPayment(scenarioCart, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.postPayment(scenarioCart, map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.postPayment(scenarioCart, map[string]string{"Authorization": "Bearer " + signToken(t, "someone-else")})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), service.CodeForbidden)

	w = s.postPayment(scenarioCart, map[string]string{"Authorization": "Bearer " + signToken(t, testUserID)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.store.OrderCount())
}

func TestOrderReadsRequireOwner(t *testing.T) {
	s := newTestServer(t, Options{JWTSecret: testJWTSecret})
	owner := map[string]string{"Authorization": "Bearer " + signToken(t, testUserID)}
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, owner).Code)
	require.Equal(t, http.StatusOK, s.postConfirmation(s.confirmationForm(1, "4", "45.97")).Code)

	get := func(path, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return s.do(req)
	}

	for _, path := range []string{"/orders/1", "/orders/1/payment"} {
		assert.Equal(t, http.StatusUnauthorized, get(path, "").Code, path)

		w := get(path, signToken(t, "someone-else"))
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.NotContains(t, w.Body.String(), "ana@example.com", path)

		assert.Equal(t, http.StatusOK, get(path, signToken(t, testUserID)).Code, path)
	}
}

func TestConfirmationFlow(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	form := s.confirmationForm(1, "4", "45.97")
	w := s.postConfirmation(form)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	payment, ok := s.store.Payment(1)
	require.True(t, ok)
	assert.Equal(t, "tx-0001", payment.TransactionID)
	assert.Equal(t, 8, s.store.Stock(7))

	// Replayed delivery
	w = s.postConfirmation(form)
	assert.Equal(t, http.StatusOK, w.Code)
	again, _ := s.store.Payment(1)
	assert.Equal(t, payment.ID, again.ID)
	assert.Equal(t, 8, s.store.Stock(7))
}

func TestConfirmationBadSignature(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	form := s.confirmationForm(1, "4", "45.97")
	form.Set("sign", "deadbeef")
	w := s.postConfirmation(form)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Firma no válida", w.Body.String())

	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	_, ok := s.store.Payment(1)
	assert.False(t, ok)
}

func formInputs(t *testing.T, html string) map[string]string {
	t.Helper()
	fields := map[string]string{}
	for _, m := range regexp.MustCompile(`name="([^"]+)" value="([^"]*)"`).FindAllStringSubmatch(html, -1) {
		fields[m[1]] = m[2]
	}
	require.NotEmpty(t, fields["signature"])
	return fields
}

func TestConfirmationRejectsCheckoutFormSignature(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.postPayment(scenarioCart, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields := formInputs(t, w.Body.String())

	// everything a buyer can read from the redirect form
	form := url.Values{
		"merchant_id":    {fields["merchantId"]},
		"reference_sale": {fields["referenceCode"]},
		"state_pol":      {"4"},
		"value":          {fields["amount"]},
		"currency":       {fields["currency"]},
		"transaction_id": {"tx-forged"},
		"extra1":         {fields["extra1"]},
		"extra2":         {fields["extra2"]},
		"sign":           {fields["signature"]},
	}
	w = s.postConfirmation(form)

	assert.Equal(t, http.StatusForbidden, w.Code)
	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	_, ok := s.store.Payment(1)
	assert.False(t, ok)
	assert.Equal(t, 10, s.store.Stock(7))
}

func TestConfirmationRejectsRelabelledState(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	form := s.confirmationForm(1, "7", "45.97")
	form.Set("state_pol", "4")
	w := s.postConfirmation(form)

	assert.Equal(t, http.StatusForbidden, w.Code)
	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestConfirmationUnknownOrder(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.postConfirmation(s.confirmationForm(55, "4", "45.97"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error interno", w.Body.String())
}

func TestConfirmationUnmappedState(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	w := s.postConfirmation(s.confirmationForm(1, "12", "45.97"))
	assert.Equal(t, http.StatusOK, w.Code)

	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestReturnRedirects(t *testing.T) {
	s := newTestServer(t, Options{FrontendURL: "https://tienda.example.com"})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	q := url.Values{
		"transactionState":    {"4"},
		"lapTransactionState": {"APPROVED"},
		"referenceCode":       {"ORD-1-0badcafe"},
		"TX_VALUE":            {"45.97"},
		"currency":            {"COP"},
		"transactionId":       {"tx-0001"},
		"processingDate":      {"2024-05-01"},
	}
	w := s.do(httptest.NewRequest(http.MethodGet, "/respuesta?"+q.Encode(), nil))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "tienda.example.com", loc.Host)
	assert.Equal(t, "/confirmacion", loc.Path)
	assert.Equal(t, "aprobado", loc.Query().Get("status"))
	assert.Equal(t, "1", loc.Query().Get("order"))
	assert.Equal(t, "tx-0001", loc.Query().Get("transaction"))

	// The redirect is cosmetic: the order stays pending.
	order, _ := s.store.Order(1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	_, ok := s.store.Payment(1)
	assert.False(t, ok)
}

func TestReturnUnknownState(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(httptest.NewRequest(http.MethodGet, "/respuesta", nil))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, payu.DisplayUnknown, loc.Query().Get("status"))
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Order models.Order       `json:"order"`
		Items []models.OrderItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.Order.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	w = s.do(httptest.NewRequest(http.MethodGet, "/orders/1/payment", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, s.postConfirmation(s.confirmationForm(1, "4", "45.97")).Code)
	w = s.do(httptest.NewRequest(http.MethodGet, "/orders/1/payment", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "signature")

	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, "/orders/77", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodGet, "/orders/abc", nil)).Code)
}

func TestPurgeRequiresAdminToken(t *testing.T) {
	s := newTestServer(t, Options{AdminToken: testAdminToken})
	require.Equal(t, http.StatusOK, s.postPayment(scenarioCart, nil).Code)

	w := s.do(httptest.NewRequest(http.MethodDelete, "/orders/1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/orders/1", nil)
	req.Header.Set("X-Admin-Token", testAdminToken)
	w = s.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, s.store.OrderCount())
}

func TestPurgeDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodDelete, "/orders/1", nil)
	req.Header.Set("X-Admin-Token", "")
	assert.Equal(t, http.StatusForbidden, s.do(req).Code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)

	s.store.FailOn["Ping"] = assert.AnError
	assert.Equal(t, http.StatusServiceUnavailable, s.do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":19.99,"b":"7","c":null}`), &v))
	assert.Equal(t, flexString("19.99"), v.A)
	assert.Equal(t, flexString("7"), v.B)
	assert.Equal(t, flexString(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}
