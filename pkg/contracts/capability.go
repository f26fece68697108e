// Package contracts defines the wire/data shapes shared by the issuer,
// store, and enforcement engine: capabilities, action requests, decisions,
// and receipts.
package contracts

import "time"

// CapDocVersion is the fixed literal every Capability carries.
const CapDocVersion = "capdoc/0.1"

// ActionVerb is one of the action kinds a capability may authorize.
type ActionVerb string

const (
	ActionSpend    ActionVerb = "spend"
	ActionToolCall ActionVerb = "tool_call"
)

// ResourceType classifies what a capability's resource binding names.
type ResourceType string

const (
	ResourceSpend           ResourceType = "spend"
	ResourceToolCall        ResourceType = "tool_call"
	ResourceSandboxMerchant ResourceType = "sandbox_merchant"
	ResourceGeneric         ResourceType = "generic"
)

// RevocationMode describes how a capability's revocation lifecycle behaves.
type RevocationMode string

const (
	RevocationStrict  RevocationMode = "strict"
	RevocationLease   RevocationMode = "lease"
	RevocationOneTime RevocationMode = "one_time"
)

// IssuerRef identifies the minting authority bound into a capability.
type IssuerRef struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"` // base64-encoded Ed25519 public key
}

// SubjectRef identifies the human principal on whose behalf authority is
// delegated.
type SubjectRef struct {
	ID string `json:"id"`
}

// ExecutorRef is the unique agent identity bound inside a capability; only
// this identity may present the capability at enforcement time.
type ExecutorRef struct {
	AgentID       string `json:"agent_id"`
	AgentPubKey   string `json:"agent_pubkey"` // base64-encoded Ed25519 public key
}

// ResourceRef names the class of resource a capability authorizes action
// against.
type ResourceRef struct {
	Type   ResourceType `json:"type"`
	Vendor string       `json:"vendor,omitempty"`
}

// RevocationPolicy describes a capability's revocation semantics.
type RevocationPolicy struct {
	Mode   RevocationMode `json:"mode"`
	Oracle string         `json:"oracle,omitempty"`
}

// Proof is the detached signature over a capability's (or receipt's)
// proof-less body.
type Proof struct {
	Alg string `json:"alg"` // always "ed25519"
	Sig string `json:"sig"` // base64-encoded detached signature
}

// SpendConstraints bounds the monetary actions a spend capability allows.
type SpendConstraints struct {
	Currency          string   `json:"currency"` // fixed "USD"
	MaxAmountCents     int64    `json:"max_amount_cents"`
	AllowedVendors     []string `json:"allowed_vendors"`
	BlockedCategories  []string `json:"blocked_categories,omitempty"`
}

// ToolCallConstraints bounds the tool-invocation actions a tool-call
// capability allows.
type ToolCallConstraints struct {
	AllowedTools          []string `json:"allowed_tools"`
	BlockedToolCategories []string `json:"blocked_tool_categories,omitempty"`
	MaxCalls              *int64   `json:"max_calls,omitempty"`
}

// ConstraintsKind discriminates the tagged Constraints union.
type ConstraintsKind string

const (
	ConstraintsKindSpend    ConstraintsKind = "spend"
	ConstraintsKindToolCall ConstraintsKind = "tool_call"
)

// Constraints is a tagged polymorphic record: spend and tool-call
// constraints share no fields, so callers must narrow on Kind before
// reading either side. This is deliberate — a single widened struct with
// every field optional would let a malformed record satisfy both shapes
// at once and erode the schema's ability to reject nonsense.
type Constraints struct {
	Kind     ConstraintsKind       `json:"kind"`
	Spend    *SpendConstraints     `json:"spend,omitempty"`
	ToolCall *ToolCallConstraints  `json:"tool_call,omitempty"`
}

// Capability is an immutable signed artifact authorizing a bounded class
// of actions on behalf of a specific executor agent.
type Capability struct {
	Version    string           `json:"version"`
	CapID      string           `json:"cap_id"`
	IssuedAt   time.Time        `json:"issued_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	NotBefore  *time.Time       `json:"not_before,omitempty"`
	Issuer     IssuerRef        `json:"issuer"`
	Subject    SubjectRef       `json:"subject"`
	Executor   ExecutorRef      `json:"executor"`
	Resource   ResourceRef      `json:"resource"`
	Actions    []ActionVerb     `json:"actions"`
	Constraints Constraints     `json:"constraints"`
	Revocation RevocationPolicy `json:"revocation"`
	Proof      *Proof           `json:"proof,omitempty"`
}

// ProofLessBody returns a copy of the capability with Proof cleared. This
// is the only body that may ever be signed or verified — callers must not
// sign/verify the record as received.
func (c *Capability) ProofLessBody() Capability {
	clone := *c
	clone.Proof = nil
	return clone
}

// HasAction reports whether the capability's action list contains verb.
func (c *Capability) HasAction(verb ActionVerb) bool {
	for _, a := range c.Actions {
		if a == verb {
			return true
		}
	}
	return false
}
