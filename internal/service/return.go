package service

import (
	"net/url"
	"strconv"
	"strings"

	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/util"
)

// ReturnView is what the confirmation page shows after the browser comes
// back from the gateway. It is derived from query parameters only and is
// never written anywhere.
type ReturnView struct {
	Status        string
	Message       string
	OrderID       string
	Amount        string
	Date          string
	TransactionID string
}

// BuildReturnView maps the redirect parameters to a display status.
func BuildReturnView(r payu.Return) ReturnView {
	view := ReturnView{
		Status:        payu.DisplayUnknown,
		Message:       payu.MessageUnknown,
		Amount:        strings.TrimSpace(r.TxValue),
		Date:          strings.TrimSpace(r.ProcessingDate),
		TransactionID: strings.TrimSpace(r.TransactionID),
	}
	if outcome, ok := r.Outcome(); ok {
		view.Status = outcome.Display
		view.Message = outcome.Message
	}
	if id, err := payu.ParseReferenceCode(r.ReferenceCode); err == nil {
		view.OrderID = strconv.FormatInt(id, 10)
	} else {
		view.OrderID = strings.TrimSpace(r.ReferenceCode)
	}

	util.ReturnsTotal.WithLabelValues(view.Status).Inc()
	return view
}

// RedirectURL is the storefront confirmation page carrying the view.
func (v ReturnView) RedirectURL(frontendURL string) string {
	q := url.Values{}
	q.Set("status", v.Status)
	q.Set("message", v.Message)
	q.Set("order", v.OrderID)
	q.Set("amount", v.Amount)
	q.Set("date", v.Date)
	q.Set("transaction", v.TransactionID)
	return strings.TrimRight(frontendURL, "/") + "/confirmacion?" + q.Encode()
}
