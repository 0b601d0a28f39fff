package payu

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidReference is returned when a reference code does not embed an order id.
var ErrInvalidReference = errors.New("invalid reference code")

// PaymentRequest is what the builder needs to know about an order.
type PaymentRequest struct {
	OrderID    int64
	UserID     string
	Total      decimal.Decimal
	Currency   string
	BuyerEmail string
	BuyerName  string
}

// Field is one hidden input of the WebCheckout form.
type Field struct {
	Name  string
	Value string
}

// Checkout is the signed payload the browser posts to the gateway.
type Checkout struct {
	GatewayURL    string
	ReferenceCode string
	Amount        string
	Signature     string
	Fields        []Field
}

// Value returns the named field or "".
func (c *Checkout) Value(name string) string {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Builder derives gateway payloads from orders. It makes no network calls.
type Builder struct {
	cfg    Config
	signer Signer
	suffix func() string
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:    cfg,
		signer: NewSigner(cfg.APIKey, cfg.Algorithm),
		suffix: randomSuffix,
	}
}

// Signer exposes the signer configured with the same credentials.
func (b *Builder) Signer() Signer {
	return b.signer
}

// MerchantID is the merchant the builder signs for.
func (b *Builder) MerchantID() string {
	return b.cfg.MerchantID
}

// Build signs a new checkout attempt. Every call yields a fresh reference
// code for the same order.
func (b *Builder) Build(req PaymentRequest) (*Checkout, error) {
	if req.OrderID <= 0 {
		return nil, fmt.Errorf("build checkout: invalid order id %d", req.OrderID)
	}
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("build checkout: non-positive amount %s", req.Total)
	}
	currency := req.Currency
	if currency == "" {
		currency = "COP"
	}

	reference := ReferenceCode(b.cfg.prefix(), req.OrderID, b.suffix())
	amount := FormatAmount(req.Total)
	signature := b.signer.Sign(b.cfg.MerchantID, reference, amount, currency)

	test := "0"
	if b.cfg.Test {
		test = "1"
	}
	description := b.cfg.Description
	if description == "" {
		description = "Pedido"
	}

	return &Checkout{
		GatewayURL:    b.cfg.GatewayURL,
		ReferenceCode: reference,
		Amount:        amount,
		Signature:     signature,
		Fields: []Field{
			{Name: "merchantId", Value: b.cfg.MerchantID},
			{Name: "accountId", Value: b.cfg.AccountID},
			{Name: "description", Value: fmt.Sprintf("%s #%d", description, req.OrderID)},
			{Name: "referenceCode", Value: reference},
			{Name: "amount", Value: amount},
			{Name: "tax", Value: "0"},
			{Name: "taxReturnBase", Value: "0"},
			{Name: "currency", Value: currency},
			{Name: "signature", Value: signature},
			{Name: "test", Value: test},
			{Name: "buyerEmail", Value: req.BuyerEmail},
			{Name: "buyerFullName", Value: req.BuyerName},
			{Name: "responseUrl", Value: b.cfg.ResponseURL},
			{Name: "confirmationUrl", Value: b.cfg.ConfirmationURL},
			{Name: "extra1", Value: req.UserID},
			{Name: "extra2", Value: strconv.FormatInt(req.OrderID, 10)},
		},
	}, nil
}

// ReferenceCode formats prefix-orderID-suffix.
func ReferenceCode(prefix string, orderID int64, suffix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, orderID, suffix)
}

// ParseReferenceCode recovers the order id from a reference code. The prefix
// may itself contain dashes; the order id is always the second-to-last part.
func ParseReferenceCode(ref string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(ref), "-")
	if len(parts) < 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	id, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return id, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

var formTemplate = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Redirigiendo a PayU</title>
</head>
<body onload="document.forms['payu'].submit()">
<p>Redirigiendo a la pasarela de pago...</p>
<form name="payu" method="post" action="{{.GatewayURL}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continuar al pago</button></noscript>
</form>
</body>
</html>
`))

// RenderForm writes the auto-submitting HTML form for a checkout.
func RenderForm(w io.Writer, c *Checkout) error {
	return formTemplate.Execute(w, c)
}
