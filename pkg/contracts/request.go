package contracts

import "time"

// CartLine is a single line item in a spend action request.
type CartLine struct {
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Qty        int64  `json:"qty"`
}

// SpendRequest is an agent's request to spend against a capability.
type SpendRequest struct {
	RequestID   string     `json:"request_id"`
	Ts          time.Time  `json:"ts"`
	AgentID     string     `json:"agent_id"`
	AgentPubKey string     `json:"agent_pubkey"`
	Action      ActionVerb `json:"action"` // always "spend"
	Vendor      string     `json:"vendor"`
	Currency    string     `json:"currency"` // always "USD"
	Cart        []CartLine `json:"cart"`
}

// ToolCallRequest is an agent's request to invoke a tool against a
// capability.
type ToolCallRequest struct {
	RequestID   string         `json:"request_id"`
	Ts          time.Time      `json:"ts"`
	AgentID     string         `json:"agent_id"`
	AgentPubKey string         `json:"agent_pubkey"`
	Action      ActionVerb     `json:"action"` // always "tool_call"
	ToolName    string         `json:"tool_name"`
	ToolCategory string        `json:"tool_category"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
}

// CartTotals computes cumulative amount and item count for a cart. The
// caller must check IsSafe before trusting Amount for policy decisions.
type CartTotals struct {
	AmountCents int64
	ItemCount   int64
	IsSafe      bool
}

// MaxSafeInteger mirrors canonicalize's safe-integer ceiling so the
// enforcement engine's amount-safety check uses the same boundary the
// canonicalizer would reject at signing time.
const MaxSafeInteger = 1<<53 - 1

// ComputeCartTotals sums price*qty across cart lines, flagging overflow of
// the safe-integer range rather than wrapping silently.
func ComputeCartTotals(cart []CartLine) CartTotals {
	var amount, items int64
	for _, line := range cart {
		lineTotal := line.PriceCents * line.Qty
		if line.Qty != 0 && lineTotal/line.Qty != line.PriceCents {
			return CartTotals{IsSafe: false}
		}
		newAmount := amount + lineTotal
		if newAmount < amount {
			return CartTotals{IsSafe: false}
		}
		amount = newAmount
		items += line.Qty
	}
	if amount > MaxSafeInteger || amount < 0 {
		return CartTotals{IsSafe: false}
	}
	return CartTotals{AmountCents: amount, ItemCount: items, IsSafe: true}
}
