package payu

import (
	"strconv"
	"strings"

	"storefront-checkout/internal/models"
)

// TransactionState is PayU's numeric state_pol / transactionState code.
type TransactionState int

const (
	StateApproved TransactionState = 4
	StateExpired  TransactionState = 5
	StateDeclined TransactionState = 6
	StatePending  TransactionState = 7
	StateError    TransactionState = 104
)

// Outcome is one row of the mapping table.
type Outcome struct {
	State         TransactionState
	Name          string
	OrderStatus   string
	PaymentStatus string
	Display       string
	Message       string
}

// DisplayUnknown is shown when the gateway state cannot be mapped.
const (
	DisplayUnknown = "desconocido"
	MessageUnknown = "No pudimos determinar el estado de tu pago. Revisa tus pedidos en unos minutos."
)

var outcomes = map[TransactionState]Outcome{
	StateApproved: {
		State: StateApproved, Name: "APPROVED",
		OrderStatus: models.OrderStatusPaid, PaymentStatus: models.PaymentStatusCompleted,
		Display: "aprobado", Message: "Tu pago fue aprobado. ¡Gracias por tu compra!",
	},
	StateDeclined: {
		State: StateDeclined, Name: "DECLINED",
		OrderStatus: models.OrderStatusCancelled, PaymentStatus: models.PaymentStatusCancelled,
		Display: "rechazado", Message: "Tu pago fue rechazado por la entidad financiera.",
	},
	StateExpired: {
		State: StateExpired, Name: "EXPIRED",
		OrderStatus: models.OrderStatusCancelled, PaymentStatus: models.PaymentStatusCancelled,
		Display: "expirado", Message: "La transacción expiró antes de completarse.",
	},
	StatePending: {
		State: StatePending, Name: "PENDING",
		OrderStatus: models.OrderStatusPending, PaymentStatus: models.PaymentStatusPending,
		Display: "pendiente", Message: "Tu pago está pendiente de confirmación.",
	},
	StateError: {
		State: StateError, Name: "ERROR",
		OrderStatus: models.OrderStatusError, PaymentStatus: models.PaymentStatusFailed,
		Display: "error", Message: "Ocurrió un error procesando tu pago.",
	},
}

// Names used by lapTransactionState and response_message_pol.
var namedStates = map[string]TransactionState{
	"APPROVED":            StateApproved,
	"DECLINED":            StateDeclined,
	"ENTITY_DECLINED":     StateDeclined,
	"EXPIRED":             StateExpired,
	"EXPIRED_TRANSACTION": StateExpired,
	"PENDING":             StatePending,
	"ERROR":               StateError,
}

// Lookup maps a numeric code or a state name. Unknown input is reported as
// not found and must never be treated as approved.
func Lookup(raw string) (Outcome, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Outcome{}, false
	}
	if code, err := strconv.Atoi(raw); err == nil {
		o, ok := outcomes[TransactionState(code)]
		return o, ok
	}
	if st, ok := namedStates[strings.ToUpper(raw)]; ok {
		return outcomes[st], true
	}
	return Outcome{}, false
}

// LookupFirst returns the first mappable value, so the numeric code wins over
// a textual fallback.
func LookupFirst(raws ...string) (Outcome, bool) {
	for _, raw := range raws {
		if o, ok := Lookup(raw); ok {
			return o, true
		}
	}
	return Outcome{}, false
}

// DocumentedStates lists every state the gateway documents.
func DocumentedStates() []TransactionState {
	return []TransactionState{StateApproved, StateExpired, StateDeclined, StatePending, StateError}
}
