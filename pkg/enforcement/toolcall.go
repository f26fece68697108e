package enforcement

import (
	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
)

// EvaluateToolCall runs the fixed-order verification pipeline for a
// tool-call request. It follows the same skeleton as EvaluateSpend with
// the amount-related steps omitted and vendor/category checks replaced
// by tool-name/tool-category checks.
func (e *Engine) EvaluateToolCall(req *contracts.ToolCallRequest) (*contracts.Decision, error) {
	if _, err := e.emitReceipt(contracts.EventActionAttempt, req.RequestID, "", req.AgentID, "", contracts.ReceiptSummary{}); err != nil {
		return nil, apierr.StoreError(err)
	}

	capID, denyReason := e.evaluateToolCallAgainstStore(req)
	if denyReason != "" {
		receiptID, err := e.emitReceipt(contracts.EventActionDenied, req.RequestID, capID, req.AgentID, "",
			contracts.ReceiptSummary{DeniedReason: denyReason})
		if err != nil {
			return nil, apierr.StoreError(err)
		}
		return &contracts.Decision{RequestID: req.RequestID, Decision: contracts.DecisionDeny, Reason: denyReason, ReceiptID: receiptID}, nil
	}

	receiptID, err := e.emitReceipt(contracts.EventActionAllowed, req.RequestID, capID, req.AgentID, "", contracts.ReceiptSummary{})
	if err != nil {
		return nil, apierr.StoreError(err)
	}

	return &contracts.Decision{RequestID: req.RequestID, Decision: contracts.DecisionAllow, Reason: contracts.ReasonAllowed, ReceiptID: receiptID}, nil
}

func (e *Engine) evaluateToolCallAgainstStore(req *contracts.ToolCallRequest) (capID string, denyReason string) {
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

	if !cap.HasAction(contracts.ActionToolCall) || cap.Constraints.Kind != contracts.ConstraintsKindToolCall || cap.Constraints.ToolCall == nil {
		return capID, contracts.ReasonActionNotAllowed
	}
	tc := cap.Constraints.ToolCall

	if !contains(tc.AllowedTools, req.ToolName) {
		return capID, contracts.ReasonToolNotAllowed
	}

	if contains(tc.BlockedToolCategories, req.ToolCategory) {
		return capID, contracts.ToolCategoryBlockedReason(req.ToolCategory)
	}

	return capID, ""
}
