package issuer

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Connerlevi/capnet/pkg/canonicalize"
	"github.com/Connerlevi/capnet/pkg/contracts"
	"github.com/Connerlevi/capnet/pkg/crypto"
	"github.com/Connerlevi/capnet/pkg/schema"
	"github.com/Connerlevi/capnet/pkg/store"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	s, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return New(s, "capnet-core", nil)
}

func agentKeypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func b64(t *testing.T, b []byte) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(b)
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestIssueSpend_UsesTemplateDefaults(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	cap, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "sandboxmart",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.ConstraintsKindSpend, cap.Constraints.Kind)
	assert.Equal(t, []string{"sandboxmart"}, cap.Constraints.Spend.AllowedVendors)
	assert.Equal(t, int64(5000), cap.Constraints.Spend.MaxAmountCents)
	assert.Equal(t, "sandboxmart", cap.Resource.Vendor)
	assert.True(t, cap.HasAction(contracts.ActionSpend))
	assert.NotNil(t, cap.Proof)

	ok, err := crypto.Verify(iss.store.IssuerKeypair().PublicKey, canonicalize.DomainCapDoc, cap.ProofLessBody(), mustDecode(t, cap.Proof.Sig))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIssueSpend_CallerConstraintsOverrideTemplate(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	cap, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "sandboxmart",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
		Constraints: &contracts.SpendConstraints{
			Currency:       "USD",
			MaxAmountCents: 1000,
			AllowedVendors: []string{"othermart"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cap.Constraints.Spend.MaxAmountCents)
	assert.Equal(t, "othermart", cap.Resource.Vendor)
}

func TestIssueSpend_UnknownTemplate(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	_, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "does-not-exist",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	assert.Error(t, err)
}

func TestIssueSpend_EmitsCapIssuedReceipt(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	cap, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "sandboxmart",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	require.NoError(t, err)

	receipts, err := iss.store.ListReceipts()
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, contracts.EventCapIssued, receipts[0].Event)
	assert.Equal(t, cap.CapID, receipts[0].CapID)
}

func TestIssueToolCall_UsesTemplateDefaults(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	cap, err := iss.IssueToolCall(&schema.IssueToolCallInput{
		TemplateTag: "generic_tool_access",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ConstraintsKindToolCall, cap.Constraints.Kind)
	assert.Contains(t, cap.Constraints.ToolCall.AllowedTools, "web_search")
	assert.True(t, cap.HasAction(contracts.ActionToolCall))
}

func TestRevoke_CapNotFound(t *testing.T) {
	iss := newTestIssuer(t)
	err := iss.Revoke("nonexistent")
	assert.Error(t, err)
}

func TestRevoke_HappyPathThenAlreadyRevoked(t *testing.T) {
	iss := newTestIssuer(t)
	agent := agentKeypair(t)

	cap, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "sandboxmart",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	require.NoError(t, err)

	require.NoError(t, iss.Revoke(cap.CapID))
	assert.True(t, iss.store.IsRevoked(cap.CapID))

	err = iss.Revoke(cap.CapID)
	assert.Error(t, err)

	receipts, err := iss.store.ListReceipts()
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, contracts.EventCapRevoked, receipts[1].Event)
}

func TestIssueSpend_ExpiresOneDayAfterIssuance(t *testing.T) {
	iss := newTestIssuer(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return fixed }
	agent := agentKeypair(t)

	cap, err := iss.IssueSpend(&schema.IssueSpendInput{
		TemplateTag: "sandboxmart",
		AgentID:     "agent:demo",
		AgentPubKey: b64(t, agent.PublicKey),
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, cap.IssuedAt)
	assert.Equal(t, fixed.Add(24*time.Hour), cap.ExpiresAt)
}
