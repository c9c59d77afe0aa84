package audit

import "time"

// Event captures a money- or auth-relevant action for the append-only audit
// stream. Kept transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	AccountID string    `json:"account_id,omitempty"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Actions emitted by the core. The set is closed on purpose; new actions are
// added here, not inlined at call sites.
const (
	ActionSpend        = "ledger.spend"
	ActionSpendRefused = "ledger.spend_refused"
	ActionCreditAdd    = "ledger.credit_add"
	ActionJobCreated   = "job.created"
	ActionJobCompleted = "job.completed"
	ActionSettlement   = "payment.settled"
	ActionOTPLockout   = "otp.lockout"
)
