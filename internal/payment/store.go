package payment

import (
	"context"
	"time"
)

// Store persists transactions. ApplyNotice mirrors the notice's status onto
// the record, stub-creating it when the order is unknown, and returns the
// updated transaction. Settlement crediting is not gated on the status
// transition: the service keys the ledger credit by order id, so a credit
// that failed once is retried on redelivery and never applied twice.
type Store interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, orderID string) (Transaction, error)
	ApplyNotice(ctx context.Context, orderID, status string, payload []byte, now time.Time) (Transaction, error)
}
