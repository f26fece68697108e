package enforcement

import (
	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
)

// EvaluateSpend runs the fixed-order verification pipeline for a spend
// request and returns the decision. The ACTION_ATTEMPT receipt is
// emitted unconditionally before any cap lookup; exactly one of
// ACTION_ALLOWED/ACTION_DENIED follows it, except when the cart total is
// not a safe integer, which returns AMOUNT_OVERFLOW with no second receipt.
func (e *Engine) EvaluateSpend(req *contracts.SpendRequest) (*contracts.Decision, error) {
	totals := contracts.ComputeCartTotals(req.Cart)

	if _, err := e.emitReceipt(contracts.EventActionAttempt, req.RequestID, "", req.AgentID, req.Vendor,
		contracts.ReceiptSummary{AmountCents: ptr(totals.AmountCents), ItemCount: ptr(totals.ItemCount)}); err != nil {
		return nil, apierr.StoreError(err)
	}

	if !totals.IsSafe {
		// Amount overflow is a malformed request, not a normal denial:
		// it is surfaced at the transport layer and never gets an
		// ACTION_DENIED receipt of its own.
		return nil, apierr.AmountOverflow("cart total is not a safe integer")
	}

	capID, denyReason := e.evaluateSpendAgainstStore(req, totals)
	if denyReason != "" {
		receiptID, err := e.emitReceipt(contracts.EventActionDenied, req.RequestID, capID, req.AgentID, req.Vendor,
			contracts.ReceiptSummary{DeniedReason: denyReason})
		if err != nil {
			return nil, apierr.StoreError(err)
		}
		return &contracts.Decision{RequestID: req.RequestID, Decision: contracts.DecisionDeny, Reason: denyReason, ReceiptID: receiptID}, nil
	}

	receiptID, err := e.emitReceipt(contracts.EventActionAllowed, req.RequestID, capID, req.AgentID, req.Vendor,
		contracts.ReceiptSummary{AmountCents: ptr(totals.AmountCents), ItemCount: ptr(totals.ItemCount)})
	if err != nil {
		return nil, apierr.StoreError(err)
	}

	return &contracts.Decision{RequestID: req.RequestID, Decision: contracts.DecisionAllow, Reason: contracts.ReasonAllowed, ReceiptID: receiptID}, nil
}

// evaluateSpendAgainstStore runs steps 3-11. It returns the matched
// capability's ID (for the denied-receipt's cap_id field, empty if no
// cap was found) and a non-empty deny reason, or an empty reason on
// allow.
func (e *Engine) evaluateSpendAgainstStore(req *contracts.SpendRequest, totals contracts.CartTotals) (capID string, denyReason string) {
	candidates := e.store.FindCapsForAgent(req.AgentID, req.AgentPubKey)
	if len(candidates) == 0 {
		return "", contracts.ReasonNoCapability
	}
	cap := candidates[0]
	capID = cap.CapID

	ok, err := e.verifyCapability(cap)
	if err != nil || !ok {
		return capID, contracts.ReasonBadSignature
	}

	if cap.Executor.AgentID != req.AgentID || cap.Executor.AgentPubKey != req.AgentPubKey {
		return capID, contracts.ReasonExecutorMismatch
	}

	if reason, ok := e.timeCheck(cap, e.now()); !ok {
		return capID, reason
	}

	if e.store.IsRevoked(cap.CapID) {
		return capID, contracts.ReasonRevoked
	}

	if !cap.HasAction(contracts.ActionSpend) || cap.Constraints.Kind != contracts.ConstraintsKindSpend || cap.Constraints.Spend == nil {
		return capID, contracts.ReasonActionNotAllowed
	}
	sc := cap.Constraints.Spend

	if !contains(sc.AllowedVendors, req.Vendor) {
		return capID, contracts.ReasonVendorNotAllowed
	}

	for _, line := range req.Cart {
		if contains(sc.BlockedCategories, line.Category) {
			return capID, contracts.CategoryBlockedReason(line.Category)
		}
	}

	if totals.AmountCents > sc.MaxAmountCents {
		return capID, contracts.ReasonAmountExceedsMax
	}

	return capID, ""
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func ptr(v int64) *int64 { return &v }
