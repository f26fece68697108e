// Package issuer constructs, signs, schema-validates, and persists
// capability documents, and emits issuance receipts.
package issuer

import (
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/canonicalize"
	"github.com/Connerlevi/capnet/pkg/contracts"
	"github.com/Connerlevi/capnet/pkg/crypto"
	"github.com/Connerlevi/capnet/pkg/issuer/templates"
	"github.com/Connerlevi/capnet/pkg/schema"
	"github.com/Connerlevi/capnet/pkg/store"
)

const capValidity = 24 * time.Hour

// Issuer mints capabilities bound to the store's process-lifetime
// signing identity.
type Issuer struct {
	store    *store.Store
	catalog  *templates.Catalog
	issuerID string
	log      *slog.Logger

	now func() time.Time // overridable for tests
}

// Option configures an Issuer at construction.
type Option func(*Issuer)

// WithCatalog overrides the built-in template catalog.
func WithCatalog(c *templates.Catalog) Option {
	return func(i *Issuer) { i.catalog = c }
}

// WithClock overrides the issuer's notion of "now", for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// New builds an Issuer persisting through s, identified as issuerID.
func New(s *store.Store, issuerID string, log *slog.Logger, opts ...Option) *Issuer {
	if log == nil {
		log = slog.Default()
	}
	i := &Issuer{
		store:    s,
		catalog:  templates.DefaultCatalog,
		issuerID: issuerID,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetClock overrides the issuer's notion of "now" after construction,
// for tests that need to mint a capability as of a specific instant.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

func (i *Issuer) issuerRef() contracts.IssuerRef {
	return contracts.IssuerRef{
		ID:     i.issuerID,
		PubKey: base64.StdEncoding.EncodeToString(i.store.IssuerKeypair().PublicKey),
	}
}

// IssueSpend mints a spend capability from a validated issuance input.
func (i *Issuer) IssueSpend(in *schema.IssueSpendInput) (*contracts.Capability, error) {
	tmpl, hasTmpl := i.catalog.Lookup(in.TemplateTag)
	if !hasTmpl {
		return nil, apierr.InvalidInput("template_tag", "unknown template: "+in.TemplateTag)
	}

	constraints := in.Constraints
	if constraints == nil {
		constraints = tmpl.DefaultSpendConstraints()
	}
	if constraints == nil || len(constraints.AllowedVendors) == 0 {
		return nil, apierr.InvalidInput("constraints.allowed_vendors", "must be non-empty, directly or via template")
	}

	cap := i.unsignedCapability(in.AgentID, in.AgentPubKey, in.NotBefore)
	cap.Actions = []contracts.ActionVerb{contracts.ActionSpend}
	cap.Resource = contracts.ResourceRef{Type: contracts.ResourceSpend, Vendor: constraints.AllowedVendors[0]}
	cap.Constraints = contracts.Constraints{Kind: contracts.ConstraintsKindSpend, Spend: constraints}

	return i.finishIssuance(cap)
}

// IssueToolCall mints a tool-call capability from a validated issuance input.
func (i *Issuer) IssueToolCall(in *schema.IssueToolCallInput) (*contracts.Capability, error) {
	tmpl, hasTmpl := i.catalog.Lookup(in.TemplateTag)
	if !hasTmpl {
		return nil, apierr.InvalidInput("template_tag", "unknown template: "+in.TemplateTag)
	}

	constraints := in.Constraints
	if constraints == nil {
		constraints = tmpl.DefaultToolCallConstraints()
	}
	if constraints == nil || len(constraints.AllowedTools) == 0 {
		return nil, apierr.InvalidInput("constraints.allowed_tools", "must be non-empty, directly or via template")
	}

	cap := i.unsignedCapability(in.AgentID, in.AgentPubKey, in.NotBefore)
	cap.Actions = []contracts.ActionVerb{contracts.ActionToolCall}
	cap.Resource = contracts.ResourceRef{Type: contracts.ResourceToolCall}
	cap.Constraints = contracts.Constraints{Kind: contracts.ConstraintsKindToolCall, ToolCall: constraints}

	return i.finishIssuance(cap)
}

func (i *Issuer) unsignedCapability(agentID, agentPubKey string, notBefore *time.Time) *contracts.Capability {
	now := i.now()
	return &contracts.Capability{
		Version:    contracts.CapDocVersion,
		CapID:      uuid.New().String(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(capValidity),
		NotBefore:  notBefore,
		Issuer:     i.issuerRef(),
		Subject:    contracts.SubjectRef{ID: agentID},
		Executor:   contracts.ExecutorRef{AgentID: agentID, AgentPubKey: agentPubKey},
		Revocation: contracts.RevocationPolicy{Mode: contracts.RevocationStrict},
	}
}

// finishIssuance runs steps 3-8 of the issuance algorithm: sign, re-validate
// the signed record, self-verify, persist, emit a receipt, and return.
func (i *Issuer) finishIssuance(cap *contracts.Capability) (*contracts.Capability, error) {
	if cap.NotBefore != nil && cap.NotBefore.After(cap.ExpiresAt) {
		return nil, apierr.InvalidInput("not_before", "must not be after expires_at")
	}

	kp := i.store.IssuerKeypair()

	sig, err := crypto.Sign(kp, canonicalize.DomainCapDoc, cap.ProofLessBody())
	if err != nil {
		return nil, apierr.SigningFailure(err)
	}
	cap.Proof = &contracts.Proof{Alg: "ed25519", Sig: base64.StdEncoding.EncodeToString(sig)}

	if err := schema.ValidateCapabilityRecord(cap); err != nil {
		return nil, apierr.SchemaFailure(err)
	}

	ok, err := crypto.Verify(kp.PublicKey, canonicalize.DomainCapDoc, cap.ProofLessBody(), sig)
	if err != nil || !ok {
		return nil, apierr.SigningFailure(err)
	}

	if err := i.store.PutCapability(cap); err != nil {
		return nil, apierr.StoreError(err)
	}

	receipt := &contracts.Receipt{
		ReceiptID: uuid.New().String(),
		Ts:        i.now(),
		Event:     contracts.EventCapIssued,
		CapID:     cap.CapID,
		AgentID:   cap.Executor.AgentID,
		Summary:   issuanceSummary(cap),
	}
	if err := i.store.AppendReceipt(receipt); err != nil {
		i.log.Error("issuer: failed to append CAP_ISSUED receipt", "cap_id", cap.CapID, "error", err)
		return nil, apierr.StoreError(err)
	}

	i.log.Info("issuer: issued capability", "cap_id", cap.CapID, "agent_id", cap.Executor.AgentID)
	return cap, nil
}

func issuanceSummary(cap *contracts.Capability) contracts.ReceiptSummary {
	if cap.Constraints.Kind == contracts.ConstraintsKindSpend && cap.Constraints.Spend != nil {
		max := cap.Constraints.Spend.MaxAmountCents
		return contracts.ReceiptSummary{AmountCents: &max}
	}
	return contracts.ReceiptSummary{}
}
