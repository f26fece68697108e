// Package enforcement implements the fixed-order evaluation of an action
// request against the capability store, producing a decision plus the
// audit receipts that bracket it.
//
// The check order within EvaluateSpend/EvaluateToolCall is normative: it
// determines which denial reason is surfaced when a request triggers
// more than one defect. Checks run cheapest-and-most-local first
// (request shape), then cap-structural (lookup, signature), then
// cap-trust (executor binding, time, revocation), then action-semantic
// (vendor/category/amount or tool/category). Signature verification
// always precedes reading any other capability field, so no field on an
// unverified capability can ever influence a decision.
package enforcement

import (
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Connerlevi/capnet/pkg/canonicalize"
	"github.com/Connerlevi/capnet/pkg/contracts"
	"github.com/Connerlevi/capnet/pkg/crypto"
	"github.com/Connerlevi/capnet/pkg/store"
)

// Engine evaluates action requests against a store.
type Engine struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

// New builds an Engine reading from and writing receipts to s.
func New(s *store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, log: log, now: time.Now}
}

// deny is an internal sentinel carrying the reason for a denial receipt;
// it is never returned to the HTTP layer as an error — the decision
// itself is the normal return value.
type deny struct {
	reason string
}

func (e *Engine) emitReceipt(event contracts.ReceiptEvent, requestID, capID, agentID, vendor string, summary contracts.ReceiptSummary) (string, error) {
	receipt := &contracts.Receipt{
		ReceiptID: uuid.New().String(),
		Ts:        e.now(),
		Event:     event,
		CapID:     capID,
		RequestID: requestID,
		AgentID:   agentID,
		Vendor:    vendor,
		Summary:   summary,
	}
	if err := e.store.AppendReceipt(receipt); err != nil {
		return "", err
	}
	return receipt.ReceiptID, nil
}

func (e *Engine) verifyCapability(cap *contracts.Capability) (bool, error) {
	kp := cap.Proof
	if kp == nil {
		return false, nil
	}
	sig, err := base64.StdEncoding.DecodeString(kp.Sig)
	if err != nil {
		return false, nil
	}
	pub, err := base64.StdEncoding.DecodeString(cap.Issuer.PubKey)
	if err != nil {
		return false, nil
	}
	ok, err := crypto.Verify(pub, canonicalize.DomainCapDoc, cap.ProofLessBody(), sig)
	if err != nil {
		// A length mismatch or malformed key is a structural mistrust
		// signal, equivalent to a failed cryptographic check.
		return false, nil
	}
	return ok, nil
}

// timeCheck implements step 6 for both request kinds: it checks the
// already-decoded expires_at/not_before (a zero expires_at is
// BAD_CAPABILITY_TIME) and applies the boundary semantics where the
// exact instant expires_at == now is already expired, and the exact
// instant not_before == now is already valid.
func (e *Engine) timeCheck(cap *contracts.Capability, now time.Time) (reason string, ok bool) {
	if cap.ExpiresAt.IsZero() {
		return contracts.ReasonBadCapabilityTime, false
	}
	if !now.Before(cap.ExpiresAt) {
		return contracts.ReasonCapExpired, false
	}
	if cap.NotBefore != nil && now.Before(*cap.NotBefore) {
		return contracts.ReasonCapNotYetValid, false
	}
	return "", true
}
