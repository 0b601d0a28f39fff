package payu

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"storefront-checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "4Vj8eK4rloUd272L48hsrarnUA"

func testConfig() Config {
	return Config{
		MerchantID:      "508029",
		AccountID:       "512321",
		APIKey:          testAPIKey,
		GatewayURL:      "https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/",
		ResponseURL:     "http://localhost:3001/respuesta",
		ConfirmationURL: "http://localhost:3001/confirmacion",
		Test:            true,
		Algorithm:       AlgorithmMD5,
	}
}

func TestSignKnownVectors(t *testing.T) {
	md5Signer := NewSigner(testAPIKey, AlgorithmMD5)
	assert.Equal(t, "a70ec02c6e200d1d008bb10012da2ce5",
		md5Signer.Sign("508029", "ORD-12-abcd1234", "45.97", "COP"))

	shaSigner := NewSigner(testAPIKey, AlgorithmSHA256)
	assert.Equal(t, "abbbe17be7f53b05339b59cdf91413a57036108c5789a35fa64f6fc9e00c6b5d",
		shaSigner.Sign("508029", "ORD-12-abcd1234", "45.97", "COP"))
}

func TestSignConfirmationKnownVectors(t *testing.T) {
	md5Signer := NewSigner(testAPIKey, AlgorithmMD5)
	assert.Equal(t, "3c96246efb51304d217d2c5e20301aee",
		md5Signer.SignConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4"))
	// 46.00 is signed as 46.0
	assert.Equal(t, "3a69ce57e6605a37fa5326b7950cfbf2",
		md5Signer.SignConfirmation("508029", "ORD-12-abcd1234", "46.00", "COP", "4"))

	shaSigner := NewSigner(testAPIKey, AlgorithmSHA256)
	assert.Equal(t, "c81e1a93a00610580267160692f4f50a4ddec6aaec22ac6cdb64c85e24dd8c6c",
		shaSigner.SignConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4"))
}

func TestVerifyConfirmation(t *testing.T) {
	s := NewSigner(testAPIKey, AlgorithmMD5)
	const approved = "3c96246efb51304d217d2c5e20301aee"

	assert.True(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4", approved))
	assert.True(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4", strings.ToUpper(approved)))
	assert.True(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "46.00", "COP", "4", "3a69ce57e6605a37fa5326b7950cfbf2"))
	assert.True(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "46.0", "COP", "4", "3a69ce57e6605a37fa5326b7950cfbf2"))

	assert.False(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.98", "COP", "4", approved))
	assert.False(t, s.VerifyConfirmation("508030", "ORD-12-abcd1234", "45.97", "COP", "4", approved))
	assert.False(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4", ""))

	other := NewSigner("another-key", AlgorithmMD5)
	assert.False(t, other.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4", approved))
}

func TestVerifyConfirmationBindsState(t *testing.T) {
	s := NewSigner(testAPIKey, AlgorithmMD5)

	// a pending notification relabelled as approved
	pending := s.SignConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "7")
	assert.Equal(t, "9bc5875922a1ed5780d4b8dbe53d4e77", pending)
	assert.False(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", "4", pending))

	// the checkout form signature is public to the buyer
	form := s.Sign("508029", "ORD-12-abcd1234", "45.97", "COP")
	for _, state := range []string{"4", "5", "6", "7", "104", ""} {
		assert.False(t, s.VerifyConfirmation("508029", "ORD-12-abcd1234", "45.97", "COP", state, form), state)
	}
}

func TestNewValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"150.00", "150.0"},
		{"150", "150.0"},
		{"150.26", "150.26"},
		{"150.20", "150.2"},
		{"45.97", "45.97"},
	}
	for _, tt := range tests {
		got, ok := NewValue(tt.in)
		assert.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, ok := NewValue("abc")
	assert.False(t, ok)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmMD5, a)

	a, err = ParseAlgorithm("SHA256")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSHA256, a)

	_, err = ParseAlgorithm("sha1")
	assert.Error(t, err)
}

func TestLookupDocumentedStates(t *testing.T) {
	for _, st := range DocumentedStates() {
		o, ok := Lookup(strconv.Itoa(int(st)))
		require.True(t, ok, "state %d", st)
		assert.Equal(t, st, o.State)
		assert.NotEmpty(t, o.OrderStatus)
		assert.NotEmpty(t, o.PaymentStatus)
		assert.NotEmpty(t, o.Message)

		byName, ok := Lookup(o.Name)
		require.True(t, ok, o.Name)
		assert.Equal(t, o, byName)
	}
}

func TestLookupTable(t *testing.T) {
	tests := []struct {
		raw     string
		order   string
		payment string
	}{
		{"4", models.OrderStatusPaid, models.PaymentStatusCompleted},
		{"6", models.OrderStatusCancelled, models.PaymentStatusCancelled},
		{"5", models.OrderStatusCancelled, models.PaymentStatusCancelled},
		{"7", models.OrderStatusPending, models.PaymentStatusPending},
		{"104", models.OrderStatusError, models.PaymentStatusFailed},
		{"approved", models.OrderStatusPaid, models.PaymentStatusCompleted},
		{"ENTITY_DECLINED", models.OrderStatusCancelled, models.PaymentStatusCancelled},
	}
	for _, tt := range tests {
		o, ok := Lookup(tt.raw)
		require.True(t, ok, tt.raw)
		assert.Equal(t, tt.order, o.OrderStatus, tt.raw)
		assert.Equal(t, tt.payment, o.PaymentStatus, tt.raw)
	}
}

func TestLookupUnknownNeverPaid(t *testing.T) {
	for _, raw := range []string{"", "1", "2", "3", "8", "99", "105", "-4", "4.0", "APPROVE", "paid", "OK"} {
		o, ok := Lookup(raw)
		assert.False(t, ok, raw)
		assert.NotEqual(t, models.OrderStatusPaid, o.OrderStatus, raw)
	}
}

func TestLookupFirstPrefersNumeric(t *testing.T) {
	o, ok := LookupFirst("6", "APPROVED")
	require.True(t, ok)
	assert.Equal(t, StateDeclined, o.State)

	o, ok = LookupFirst("", "garbage", "PENDING")
	require.True(t, ok)
	assert.Equal(t, StatePending, o.State)
}

func TestReferenceCodeRoundTrip(t *testing.T) {
	ref := ReferenceCode("ORD", 42, "deadbeef")
	assert.Equal(t, "ORD-42-deadbeef", ref)

	id, err := ParseReferenceCode(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = ParseReferenceCode("TIENDA-WEB-7-0a1b2c3d")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	for _, bad := range []string{"", "ORD-42", "ORD-x-deadbeef", "ORD-0-deadbeef"} {
		_, err := ParseReferenceCode(bad)
		assert.ErrorIs(t, err, ErrInvalidReference, bad)
	}
}

func TestBuild(t *testing.T) {
	b := NewBuilder(testConfig())
	b.suffix = func() string { return "abcd1234" }

	co, err := b.Build(PaymentRequest{
		OrderID:    12,
		UserID:     "user-1",
		Total:      decimal.RequireFromString("45.97"),
		Currency:   "COP",
		BuyerEmail: "cliente@example.com",
		BuyerName:  "Cliente",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORD-12-abcd1234", co.ReferenceCode)
	assert.Equal(t, "45.97", co.Amount)
	assert.Equal(t, "a70ec02c6e200d1d008bb10012da2ce5", co.Signature)
	assert.Equal(t, "508029", co.Value("merchantId"))
	assert.Equal(t, "512321", co.Value("accountId"))
	assert.Equal(t, "0", co.Value("tax"))
	assert.Equal(t, "1", co.Value("test"))
	assert.Equal(t, "cliente@example.com", co.Value("buyerEmail"))
	assert.Equal(t, "http://localhost:3001/respuesta", co.Value("responseUrl"))
	assert.Equal(t, "http://localhost:3001/confirmacion", co.Value("confirmationUrl"))
	assert.Equal(t, "user-1", co.Value("extra1"))
	assert.Equal(t, "12", co.Value("extra2"))

	id, err := ParseReferenceCode(co.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestBuildFreshReferencePerAttempt(t *testing.T) {
	b := NewBuilder(testConfig())
	req := PaymentRequest{OrderID: 3, Total: decimal.NewFromInt(10), Currency: "COP"}

	first, err := b.Build(req)
	require.NoError(t, err)
	second, err := b.Build(req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ReferenceCode, second.ReferenceCode)
	assert.True(t, strings.HasPrefix(first.ReferenceCode, "ORD-3-"))
	assert.True(t, strings.HasPrefix(second.ReferenceCode, "ORD-3-"))
}

func TestBuildRejectsBadInput(t *testing.T) {
	b := NewBuilder(testConfig())

	_, err := b.Build(PaymentRequest{OrderID: 0, Total: decimal.NewFromInt(1)})
	assert.Error(t, err)

	_, err = b.Build(PaymentRequest{OrderID: 1, Total: decimal.Zero})
	assert.Error(t, err)
}

func TestRenderFormEscapes(t *testing.T) {
	b := NewBuilder(testConfig())
	co, err := b.Build(PaymentRequest{
		OrderID:    5,
		Total:      decimal.NewFromInt(20),
		BuyerName:  `"><script>alert(1)</script>`,
		BuyerEmail: "a@b.co",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderForm(&buf, co))
	html := buf.String()

	assert.Contains(t, html, `action="https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/"`)
	assert.Contains(t, html, `name="signature" value="`+co.Signature+`"`)
	assert.Contains(t, html, "document.forms['payu'].submit()")
	assert.NotContains(t, html, "<script>alert(1)</script>")
}

func TestConfirmationOrderID(t *testing.T) {
	c := Confirmation{Extra2: "9", ReferenceSale: "ORD-3-abc"}
	id, err := c.OrderID()
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	c = Confirmation{Extra2: "", ReferenceSale: "ORD-3-abc"}
	id, err = c.OrderID()
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	c = Confirmation{Extra2: "nope", ReferenceSale: "nope"}
	_, err = c.OrderID()
	assert.Error(t, err)
}

func TestMaskCard(t *testing.T) {
	assert.Equal(t, "************1111", MaskCard("4111 1111 1111 1111"))
	assert.Equal(t, "************0004", MaskCard("************0004"))
	assert.Equal(t, "", MaskCard(""))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	err := Config{MerchantID: "1"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}
