package schema

import (
	"encoding/json"
	"time"

	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
)

const spendRequestSchemaDoc = `{
  "$id": "urn:capnet:spend-request:0.1",
  "type": "object",
  "additionalProperties": false,
  "required": ["request_id", "ts", "agent_id", "agent_pubkey", "action", "vendor", "cart"],
  "properties": {
    "request_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "ts": {"type": "string", "minLength": 1, "maxLength": 64},
    "agent_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "agent_pubkey": {"type": "string", "minLength": 1, "maxLength": 256},
    "action": {"const": "spend"},
    "vendor": {"type": "string", "minLength": 1, "maxLength": 256},
    "currency": {"type": "string"},
    "cart": {
      "type": "array", "minItems": 1, "maxItems": 1000,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "category", "price_cents", "qty"],
        "properties": {
          "sku": {"type": "string", "maxLength": 256},
          "name": {"type": "string", "minLength": 1, "maxLength": 512},
          "category": {"type": "string", "minLength": 1, "maxLength": 256},
          "price_cents": {"type": "integer", "minimum": 1, "maximum": 5000000},
          "qty": {"type": "integer", "minimum": 1, "maximum": 1000}
        }
      }
    }
  }
}`

const toolCallRequestSchemaDoc = `{
  "$id": "urn:capnet:toolcall-request:0.1",
  "type": "object",
  "additionalProperties": false,
  "required": ["request_id", "ts", "agent_id", "agent_pubkey", "action", "tool_name", "tool_category"],
  "properties": {
    "request_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "ts": {"type": "string", "minLength": 1, "maxLength": 64},
    "agent_id": {"type": "string", "minLength": 1, "maxLength": 256},
    "agent_pubkey": {"type": "string", "minLength": 1, "maxLength": 256},
    "action": {"const": "tool_call"},
    "tool_name": {"type": "string", "minLength": 1, "maxLength": 256},
    "tool_category": {"type": "string", "minLength": 1, "maxLength": 256},
    "tool_input": {"type": "object"}
  }
}`

var (
	spendRequestSchema    = compile("urn:capnet:spend-request:0.1", spendRequestSchemaDoc)
	toolCallRequestSchema = compile("urn:capnet:toolcall-request:0.1", toolCallRequestSchemaDoc)
)

// ValidateSpendRequest validates, normalizes, and parses a raw spend
// action request body.
func ValidateSpendRequest(raw []byte) (*contracts.SpendRequest, error) {
	v, err := decodeStrict(raw)
	if err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}
	if err := spendRequestSchema.Validate(v); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	var body struct {
		RequestID   string `json:"request_id"`
		Ts          string `json:"ts"`
		AgentID     string `json:"agent_id"`
		AgentPubKey string `json:"agent_pubkey"`
		Action      string `json:"action"`
		Vendor      string `json:"vendor"`
		Currency    string `json:"currency"`
		Cart        []struct {
			SKU        string `json:"sku"`
			Name       string `json:"name"`
			Category   string `json:"category"`
			PriceCents int64  `json:"price_cents"`
			Qty        int64  `json:"qty"`
		} `json:"cart"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	ts, err := time.Parse(time.RFC3339, body.Ts)
	if err != nil {
		return nil, apierr.InvalidInput("ts", "must be RFC3339")
	}

	currency := body.Currency
	if currency == "" {
		currency = "USD"
	}
	if currency != "USD" {
		return nil, apierr.InvalidInput("currency", "must be USD")
	}

	cart := make([]contracts.CartLine, 0, len(body.Cart))
	for _, c := range body.Cart {
		cart = append(cart, contracts.CartLine{
			SKU:        c.SKU,
			Name:       c.Name,
			Category:   Normalize(c.Category),
			PriceCents: c.PriceCents,
			Qty:        c.Qty,
		})
	}

	return &contracts.SpendRequest{
		RequestID:   body.RequestID,
		Ts:          ts,
		AgentID:     body.AgentID,
		AgentPubKey: body.AgentPubKey,
		Action:      contracts.ActionSpend,
		Vendor:      Normalize(body.Vendor),
		Currency:    currency,
		Cart:        cart,
	}, nil
}

// ValidateToolCallRequest validates, normalizes, and parses a raw
// tool-call action request body.
func ValidateToolCallRequest(raw []byte) (*contracts.ToolCallRequest, error) {
	v, err := decodeStrict(raw)
	if err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}
	if err := toolCallRequestSchema.Validate(v); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	var body struct {
		RequestID    string         `json:"request_id"`
		Ts           string         `json:"ts"`
		AgentID      string         `json:"agent_id"`
		AgentPubKey  string         `json:"agent_pubkey"`
		Action       string         `json:"action"`
		ToolName     string         `json:"tool_name"`
		ToolCategory string         `json:"tool_category"`
		ToolInput    map[string]any `json:"tool_input"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apierr.InvalidInput("", err.Error())
	}

	ts, err := time.Parse(time.RFC3339, body.Ts)
	if err != nil {
		return nil, apierr.InvalidInput("ts", "must be RFC3339")
	}

	return &contracts.ToolCallRequest{
		RequestID:    body.RequestID,
		Ts:           ts,
		AgentID:      body.AgentID,
		AgentPubKey:  body.AgentPubKey,
		Action:       contracts.ActionToolCall,
		ToolName:     body.ToolName,
		ToolCategory: Normalize(body.ToolCategory),
		ToolInput:    body.ToolInput,
	}, nil
}
