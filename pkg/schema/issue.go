package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
)

const issueSpendSchemaDoc = `{
  "$id": "urn:capnet:issue-spend:0.1",
  "type": "object",
  "additionalProperties": false,
  "required": ["template_tag", "agent_id", "agent_pubkey"],
  "properties": {
    "template_tag": {"type": "string", "minLength": 1, "maxLength": 128},
    "agent_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "agent_pubkey": {"type": "string", "minLength": 1, "maxLength": 256},
    "not_before": {"type": "string", "minLength": 1, "maxLength": 64},
    "resource_type": {"type": "string", "maxLength": 64},
    "constraints": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "currency": {"type": "string"},
        "max_amount_cents": {"type": "integer", "minimum": 1},
        "allowed_vendors": {
          "type": "array", "minItems": 1, "maxItems": 256,
          "items": {"type": "string", "minLength": 1, "maxLength": 256}
        },
        "blocked_categories": {
          "type": "array", "maxItems": 1024,
          "items": {"type": "string", "minLength": 1, "maxLength": 256}
        }
      }
    }
  }
}`

const issueToolCallSchemaDoc = `{
  "$id": "urn:capnet:issue-toolcall:0.1",
  "type": "object",
  "additionalProperties": false,
  "required": ["template_tag", "agent_id", "agent_pubkey"],
  "properties": {
    "template_tag": {"type": "string", "minLength": 1, "maxLength": 128},
    "agent_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "agent_pubkey": {"type": "string", "minLength": 1, "maxLength": 256},
    "not_before": {"type": "string", "minLength": 1, "maxLength": 64},
    "resource_type": {"type": "string", "maxLength": 64},
    "constraints": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "allowed_tools": {
          "type": "array", "minItems": 1, "maxItems": 256,
          "items": {"type": "string", "minLength": 1, "maxLength": 256}
        },
        "blocked_tool_categories": {
          "type": "array", "maxItems": 1024,
          "items": {"type": "string", "minLength": 1, "maxLength": 256}
        },
        "max_calls": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var (
	issueSpendSchema    = compile("urn:capnet:issue-spend:0.1", issueSpendSchemaDoc)
	issueToolCallSchema = compile("urn:capnet:issue-toolcall:0.1", issueToolCallSchemaDoc)
)

// IssueSpendInput is the validated, normalized input to issue_spend_capability.
type IssueSpendInput struct {
	TemplateTag string
	AgentID     string
	AgentPubKey string // base64, decoded length already checked
	NotBefore   *time.Time // nil unless the caller supplied one
	Constraints *contracts.SpendConstraints // nil if caller supplied none; template fills defaults
}

// IssueToolCallInput is the validated, normalized input to
// issue_tool_call_capability.
type IssueToolCallInput struct {
	TemplateTag string
	AgentID     string
	AgentPubKey string
	NotBefore   *time.Time
	Constraints *contracts.ToolCallConstraints
}

// rejectUnissuableResourceType refuses sandbox_merchant/generic at the
// issuance boundary: the schema admits these resource types for capabilities
// already on disk, but no issuance path is defined for minting one.
func rejectUnissuableResourceType(resourceType *string) error {
	if resourceType == nil {
		return nil
	}
	switch contracts.ResourceType(*resourceType) {
	case contracts.ResourceSandboxMerchant, contracts.ResourceGeneric:
		return apierr.InvalidInput("resource_type", "unsupported resource type for issuance; use spend or tool_call templates")
	}
	return nil
}

func parseNotBefore(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, apierr.InvalidInput("not_before", "must be RFC3339")
	}
	return &t, nil
}

// ValidateIssueSpend validates and normalizes a raw issue_spend_capability
// request body.
func ValidateIssueSpend(raw []byte) (*IssueSpendInput, error) {
	v, err := decodeStrict(raw)
	if err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}
	if err := issueSpendSchema.Validate(v); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	var body struct {
		TemplateTag  string  `json:"template_tag"`
		AgentID      string  `json:"agent_id"`
		AgentPubKey  string  `json:"agent_pubkey"`
		NotBefore    *string `json:"not_before"`
		ResourceType *string `json:"resource_type"`
		Constraints  *struct {
			Currency          string   `json:"currency"`
			MaxAmountCents    int64    `json:"max_amount_cents"`
			AllowedVendors    []string `json:"allowed_vendors"`
			BlockedCategories []string `json:"blocked_categories"`
		} `json:"constraints"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	if _, err := DecodeBase64Key(body.AgentPubKey, 32); err != nil {
		return nil, apierr.InvalidInput("agent_pubkey", err.Error())
	}
	if err := rejectUnissuableResourceType(body.ResourceType); err != nil {
		return nil, err
	}
	notBefore, err := parseNotBefore(body.NotBefore)
	if err != nil {
		return nil, err
	}

	out := &IssueSpendInput{
		TemplateTag: body.TemplateTag,
		AgentID:     body.AgentID,
		AgentPubKey: body.AgentPubKey,
		NotBefore:   notBefore,
	}

	if body.Constraints != nil {
		currency := body.Constraints.Currency
		if currency == "" {
			currency = "USD"
		}
		if currency != "USD" {
			return nil, apierr.InvalidInput("constraints.currency", "must be USD")
		}
		if len(body.Constraints.AllowedVendors) == 0 {
			return nil, apierr.InvalidInput("constraints.allowed_vendors", "must be non-empty")
		}
		out.Constraints = &contracts.SpendConstraints{
			Currency:          currency,
			MaxAmountCents:    body.Constraints.MaxAmountCents,
			AllowedVendors:    NormalizeAll(body.Constraints.AllowedVendors),
			BlockedCategories: NormalizeAll(body.Constraints.BlockedCategories),
		}
	}

	return out, nil
}

// ValidateIssueToolCall validates and normalizes a raw
// issue_tool_call_capability request body.
func ValidateIssueToolCall(raw []byte) (*IssueToolCallInput, error) {
	v, err := decodeStrict(raw)
	if err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}
	if err := issueToolCallSchema.Validate(v); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	var body struct {
		TemplateTag  string  `json:"template_tag"`
		AgentID      string  `json:"agent_id"`
		AgentPubKey  string  `json:"agent_pubkey"`
		NotBefore    *string `json:"not_before"`
		ResourceType *string `json:"resource_type"`
		Constraints  *struct {
			AllowedTools          []string `json:"allowed_tools"`
			BlockedToolCategories []string `json:"blocked_tool_categories"`
			MaxCalls              *int64   `json:"max_calls"`
		} `json:"constraints"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	if _, err := DecodeBase64Key(body.AgentPubKey, 32); err != nil {
		return nil, apierr.InvalidInput("agent_pubkey", err.Error())
	}
	if err := rejectUnissuableResourceType(body.ResourceType); err != nil {
		return nil, err
	}
	notBefore, err := parseNotBefore(body.NotBefore)
	if err != nil {
		return nil, err
	}

	out := &IssueToolCallInput{
		TemplateTag: body.TemplateTag,
		AgentID:     body.AgentID,
		AgentPubKey: body.AgentPubKey,
		NotBefore:   notBefore,
	}

	if body.Constraints != nil {
		if len(body.Constraints.AllowedTools) == 0 {
			return nil, apierr.InvalidInput("constraints.allowed_tools", "must be non-empty")
		}
		out.Constraints = &contracts.ToolCallConstraints{
			AllowedTools:          body.Constraints.AllowedTools,
			BlockedToolCategories: NormalizeAll(body.Constraints.BlockedToolCategories),
			MaxCalls:              body.Constraints.MaxCalls,
		}
	}

	return out, nil
}

// ValidateCapabilityRecord re-checks the cross-field invariants of a fully
// constructed capability immediately before it is signed and persisted,
// catching drift between construction logic and these rules.
func ValidateCapabilityRecord(cap *contracts.Capability) error {
	if cap.Version != contracts.CapDocVersion {
		return fmt.Errorf("version must be %q", contracts.CapDocVersion)
	}
	if l := len(cap.CapID); l < 8 || l > 128 {
		return fmt.Errorf("cap_id must be 8-128 characters, got %d", l)
	}
	if !cap.ExpiresAt.After(cap.IssuedAt) {
		return fmt.Errorf("expires_at must be after issued_at")
	}
	if cap.NotBefore != nil && cap.NotBefore.After(cap.ExpiresAt) {
		return fmt.Errorf("not_before must not be after expires_at")
	}
	if len(cap.Actions) == 0 {
		return fmt.Errorf("actions must be non-empty")
	}

	switch cap.Constraints.Kind {
	case contracts.ConstraintsKindSpend:
		sc := cap.Constraints.Spend
		if sc == nil {
			return fmt.Errorf("spend constraints missing for kind=spend")
		}
		if sc.Currency != "USD" {
			return fmt.Errorf("spend currency must be USD")
		}
		if sc.MaxAmountCents <= 0 {
			return fmt.Errorf("max_amount_cents must be positive")
		}
		if len(sc.AllowedVendors) == 0 {
			return fmt.Errorf("allowed_vendors must be non-empty")
		}
		found := false
		for _, v := range sc.AllowedVendors {
			if v == cap.Resource.Vendor {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("resource.vendor %q must be in allowed_vendors", cap.Resource.Vendor)
		}
	case contracts.ConstraintsKindToolCall:
		tc := cap.Constraints.ToolCall
		if tc == nil {
			return fmt.Errorf("tool_call constraints missing for kind=tool_call")
		}
		if len(tc.AllowedTools) == 0 {
			return fmt.Errorf("allowed_tools must be non-empty")
		}
	default:
		return fmt.Errorf("unknown constraints kind %q", cap.Constraints.Kind)
	}

	return nil
}
