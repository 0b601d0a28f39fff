package payu

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Algorithm selects the digest PayU uses for the signature.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA256 Algorithm = "sha256"
)

const separator = "~"

// ParseAlgorithm defaults to MD5 for empty input.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md5":
		return AlgorithmMD5, nil
	case "sha256", "sha-256":
		return AlgorithmSHA256, nil
	default:
		return "", fmt.Errorf("unsupported signature algorithm %q", s)
	}
}

// Signer computes PayU request and confirmation digests.
type Signer struct {
	apiKey string
	algo   Algorithm
}

func NewSigner(apiKey string, algo Algorithm) Signer {
	if algo == "" {
		algo = AlgorithmMD5
	}
	return Signer{apiKey: apiKey, algo: algo}
}

// Sign returns the lowercase hex digest of the checkout form fields.
func (s Signer) Sign(merchantID, referenceCode, amount, currency string) string {
	return s.digest(s.apiKey, merchantID, referenceCode, amount, currency)
}

// SignConfirmation returns the digest PayU attaches to a confirmation:
// apiKey~merchant_id~reference_sale~new_value~currency~state_pol. The
// trailing state keeps a checkout form signature from ever validating a
// notification.
func (s Signer) SignConfirmation(merchantID, referenceSale, value, currency, statePol string) string {
	nv, ok := NewValue(value)
	if !ok {
		nv = strings.TrimSpace(value)
	}
	return s.digest(s.apiKey, merchantID, referenceSale, nv, currency, strings.TrimSpace(statePol))
}

// VerifyConfirmation recomputes the confirmation signature and compares it
// in constant time.
func (s Signer) VerifyConfirmation(merchantID, referenceSale, value, currency, statePol, signature string) bool {
	got := []byte(strings.ToLower(strings.TrimSpace(signature)))
	if len(got) == 0 {
		return false
	}
	want := []byte(s.SignConfirmation(merchantID, referenceSale, value, currency, statePol))
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (s Signer) digest(fields ...string) string {
	payload := strings.Join(fields, separator)
	switch s.algo {
	case AlgorithmSHA256:
		sum := sha256.Sum256([]byte(payload))
		return hex.EncodeToString(sum[:])
	default:
		sum := md5.Sum([]byte(payload))
		return hex.EncodeToString(sum[:])
	}
}

// FormatAmount renders an amount the way it is sent to the gateway.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NewValue applies PayU's notification rounding: 150.00 becomes 150.0 while
// 150.26 stays 150.26.
func NewValue(value string) (string, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	s := d.StringFixed(2)
	if strings.HasSuffix(s, "0") {
		s = s[:len(s)-1]
	}
	return s, true
}
