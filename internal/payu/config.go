// Package payu builds signed WebCheckout requests for the PayU Latam gateway
// and verifies the notifications it sends back.
package payu

import (
	"errors"
	"strings"
)

// Config carries the merchant credentials. It is injected at construction
// time so that business code never reads process state.
type Config struct {
	MerchantID      string
	AccountID       string
	APIKey          string
	GatewayURL      string
	ResponseURL     string
	ConfirmationURL string
	Test            bool
	Algorithm       Algorithm
	ReferencePrefix string
	Description     string
}

// Validate reports missing credentials.
func (c Config) Validate() error {
	var missing []string
	if c.MerchantID == "" {
		missing = append(missing, "merchant id")
	}
	if c.AccountID == "" {
		missing = append(missing, "account id")
	}
	if c.APIKey == "" {
		missing = append(missing, "api key")
	}
	if c.GatewayURL == "" {
		missing = append(missing, "gateway url")
	}
	if len(missing) > 0 {
		return errors.New("payu config: missing " + strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) prefix() string {
	if c.ReferencePrefix == "" {
		return "ORD"
	}
	return c.ReferencePrefix
}
