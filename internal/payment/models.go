// Package payment tracks top-up transactions and applies provider settlement
// notices to the credit ledger.
package payment

import "time"

// Transaction statuses mirror the provider's vocabulary. The provider drives
// every transition through verified webhook notices; the create call only
// writes the initial pending record.
const (
	StatusPending    = "pending"
	StatusSettlement = "settlement"
	StatusCapture    = "capture"
	StatusDeny       = "deny"
	StatusCancel     = "cancel"
	StatusExpire     = "expire"
	StatusRefund     = "refund"
)

// Settled reports whether a provider status means funds have cleared.
func Settled(status string) bool {
	return status == StatusSettlement || status == StatusCapture
}

// Transaction is a top-up order keyed by OrderID. OwnerID is empty when the
// settlement notice raced the create call and arrived first; the stub record
// keeps the notice history without crediting anyone.
type Transaction struct {
	OrderID   string
	OwnerID   string
	Amount    int64
	Kind      string
	Status    string
	Provider  string
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notice is the provider's webhook body. GrossAmount and StatusCode arrive as
// strings and feed the signature check verbatim.
type Notice struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
}
