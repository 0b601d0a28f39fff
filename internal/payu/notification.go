package payu

import (
	"strconv"
	"strings"
)

// Confirmation is the server-to-server notification PayU posts to the
// confirmation URL. Field names are fixed by the gateway.
type Confirmation struct {
	MerchantID      string `form:"merchant_id"`
	ReferenceSale   string `form:"reference_sale"`
	StatePol        string `form:"state_pol"`
	ResponseMessage string `form:"response_message_pol"`
	Value           string `form:"value"`
	Currency        string `form:"currency"`
	TransactionID   string `form:"transaction_id"`
	ReferencePol    string `form:"reference_pol"`
	PaymentMethod   string `form:"payment_method_name"`
	PaymentType     string `form:"payment_method_type"`
	CardNumber      string `form:"cc_number"`
	EmailBuyer      string `form:"email_buyer"`
	Extra1          string `form:"extra1"`
	Extra2          string `form:"extra2"`
	Sign            string `form:"sign"`
}

// OrderID prefers the extra2 passthrough and falls back to the reference code.
func (c Confirmation) OrderID() (int64, error) {
	if id, err := strconv.ParseInt(strings.TrimSpace(c.Extra2), 10, 64); err == nil && id > 0 {
		return id, nil
	}
	return ParseReferenceCode(c.ReferenceSale)
}

// UserID is the extra1 passthrough.
func (c Confirmation) UserID() string {
	return strings.TrimSpace(c.Extra1)
}

// Method picks the most descriptive payment method field present.
func (c Confirmation) Method() string {
	if c.PaymentMethod != "" {
		return c.PaymentMethod
	}
	if c.PaymentType != "" {
		return c.PaymentType
	}
	return "payu"
}

// Return holds the query parameters of the browser redirect to the response URL.
type Return struct {
	TransactionState    string `form:"transactionState"`
	LapTransactionState string `form:"lapTransactionState"`
	PolTransactionState string `form:"polTransactionState"`
	ReferenceCode       string `form:"referenceCode"`
	TxValue             string `form:"TX_VALUE"`
	Currency            string `form:"currency"`
	TransactionID       string `form:"transactionId"`
	ProcessingDate      string `form:"processingDate"`
	Message             string `form:"message"`
}

// Outcome maps the redirect's state vocabularies, numeric first.
func (r Return) Outcome() (Outcome, bool) {
	return LookupFirst(r.TransactionState, r.PolTransactionState, r.LapTransactionState)
}

// MaskCard keeps the last four digits of a card number.
func MaskCard(number string) string {
	if strings.Contains(number, "*") {
		return number
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
