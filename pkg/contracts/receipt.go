package contracts

import "time"

// ReceiptEvent is the closed vocabulary of audit-log event kinds.
type ReceiptEvent string

const (
	EventCapIssued     ReceiptEvent = "CAP_ISSUED"
	EventCapRevoked    ReceiptEvent = "CAP_REVOKED"
	EventActionAttempt ReceiptEvent = "ACTION_ATTEMPT"
	EventActionAllowed ReceiptEvent = "ACTION_ALLOWED"
	EventActionDenied  ReceiptEvent = "ACTION_DENIED"
)

// ReceiptSummary carries the event-specific detail of a receipt.
type ReceiptSummary struct {
	AmountCents   *int64  `json:"amount_cents,omitempty"`
	ItemCount     *int64  `json:"item_count,omitempty"`
	DeniedReason  string  `json:"denied_reason,omitempty"`
}

// Receipt is an immutable audit-log record. Receipts are appended, never
// mutated or deleted, by core logic.
type Receipt struct {
	ReceiptID string         `json:"receipt_id"`
	Ts        time.Time      `json:"ts"`
	Event     ReceiptEvent   `json:"event"`
	CapID     string         `json:"cap_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Vendor    string         `json:"vendor,omitempty"`
	Summary   ReceiptSummary `json:"summary"`
	Meta      map[string]any `json:"meta,omitempty"`
	Proof     *Proof         `json:"proof,omitempty"`
}

// ProofLessBody returns a copy of the receipt with Proof cleared, the only
// body that may be signed or verified.
func (r *Receipt) ProofLessBody() Receipt {
	clone := *r
	clone.Proof = nil
	return clone
}
