package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Connerlevi/capnet/pkg/apierr"
)

func TestValidateIssueSpend_HappyPathNoConstraints(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `"
	}`)
	in, err := ValidateIssueSpend(raw)
	require.NoError(t, err)
	assert.Equal(t, "sandboxmart", in.TemplateTag)
	assert.Nil(t, in.Constraints)
}

func TestValidateIssueSpend_WithConstraints(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"constraints": {
			"max_amount_cents": 1000,
			"allowed_vendors": ["OtherMart"]
		}
	}`)
	in, err := ValidateIssueSpend(raw)
	require.NoError(t, err)
	require.NotNil(t, in.Constraints)
	assert.Equal(t, []string{"othermart"}, in.Constraints.AllowedVendors)
	assert.Equal(t, "USD", in.Constraints.Currency)
}

func TestValidateIssueSpend_RejectsBadPubKeyLength(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "dG9vLXNob3J0"
	}`)
	_, err := ValidateIssueSpend(raw)
	assert.Error(t, err)
}

func TestValidateIssueSpend_RejectsEmptyAllowedVendors(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"constraints": {"allowed_vendors": []}
	}`)
	_, err := ValidateIssueSpend(raw)
	assert.Error(t, err)
}

func TestValidateIssueSpend_AcceptsNotBefore(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"not_before": "2026-01-01T00:00:00Z"
	}`)
	in, err := ValidateIssueSpend(raw)
	require.NoError(t, err)
	require.NotNil(t, in.NotBefore)
	assert.Equal(t, "2026-01-01T00:00:00Z", in.NotBefore.Format("2006-01-02T15:04:05Z07:00"))
}

func TestValidateIssueSpend_RejectsMalformedNotBefore(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"not_before": "not-a-timestamp"
	}`)
	_, err := ValidateIssueSpend(raw)
	require.Error(t, err)
	structErr, ok := err.(*apierr.StructuralError)
	require.True(t, ok)
	assert.Equal(t, "not_before", structErr.FieldPath)
}

func TestValidateIssueSpend_RejectsSandboxMerchantResourceType(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"resource_type": "sandbox_merchant"
	}`)
	_, err := ValidateIssueSpend(raw)
	require.Error(t, err)
	structErr, ok := err.(*apierr.StructuralError)
	require.True(t, ok)
	assert.Equal(t, "resource_type", structErr.FieldPath)
	assert.Equal(t, "unsupported resource type for issuance; use spend or tool_call templates", structErr.Detail)
}

func TestValidateIssueSpend_RejectsGenericResourceType(t *testing.T) {
	raw := []byte(`{
		"template_tag": "sandboxmart",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"resource_type": "generic"
	}`)
	_, err := ValidateIssueSpend(raw)
	require.Error(t, err)
	structErr, ok := err.(*apierr.StructuralError)
	require.True(t, ok)
	assert.Equal(t, "resource_type", structErr.FieldPath)
}

func TestValidateIssueToolCall_AcceptsNotBefore(t *testing.T) {
	raw := []byte(`{
		"template_tag": "generic_tool_access",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"not_before": "2026-01-01T00:00:00Z",
		"constraints": {"allowed_tools": ["calculator"]}
	}`)
	in, err := ValidateIssueToolCall(raw)
	require.NoError(t, err)
	require.NotNil(t, in.NotBefore)
}

func TestValidateIssueToolCall_RejectsGenericResourceType(t *testing.T) {
	raw := []byte(`{
		"template_tag": "generic_tool_access",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"resource_type": "generic",
		"constraints": {"allowed_tools": ["calculator"]}
	}`)
	_, err := ValidateIssueToolCall(raw)
	require.Error(t, err)
	structErr, ok := err.(*apierr.StructuralError)
	require.True(t, ok)
	assert.Equal(t, "resource_type", structErr.FieldPath)
}

func TestValidateIssueToolCall_HappyPath(t *testing.T) {
	raw := []byte(`{
		"template_tag": "generic_tool_access",
		"agent_id": "agent:demo",
		"agent_pubkey": "` + validPubKey() + `",
		"constraints": {"allowed_tools": ["calculator"]}
	}`)
	in, err := ValidateIssueToolCall(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"calculator"}, in.Constraints.AllowedTools)
}
