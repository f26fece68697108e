package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Connerlevi/capnet/pkg/contracts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestOpen_GeneratesIssuerKeyOnce(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, nil)
	require.NoError(t, err)
	kp1 := s1.IssuerKeypair()
	require.NotNil(t, kp1)

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	kp2 := s2.IssuerKeypair()

	assert.Equal(t, kp1.PublicKey, kp2.PublicKey)
	assert.Equal(t, kp1.PrivateKey, kp2.PrivateKey)
}

func TestPutAndGetCapability(t *testing.T) {
	s := newTestStore(t)
	cap := &contracts.Capability{CapID: "cap-1", Executor: contracts.ExecutorRef{AgentID: "agent-1"}}

	require.NoError(t, s.PutCapability(cap))

	got, ok := s.GetCapability("cap-1")
	require.True(t, ok)
	assert.Equal(t, "cap-1", got.CapID)

	_, ok = s.GetCapability("nope")
	assert.False(t, ok)
}

func TestPutCapability_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s1.PutCapability(&contracts.Capability{CapID: "cap-1"}))

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	got, ok := s2.GetCapability("cap-1")
	require.True(t, ok)
	assert.Equal(t, "cap-1", got.CapID)
}

func TestRevoke(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutCapability(&contracts.Capability{CapID: "cap-1"}))

	already, err := s.Revoke("cap-1")
	require.NoError(t, err)
	assert.False(t, already)
	assert.True(t, s.IsRevoked("cap-1"))

	already, err = s.Revoke("cap-1")
	require.NoError(t, err)
	assert.True(t, already)

	_, err = s.Revoke("unknown-cap")
	assert.Error(t, err)
}

func TestFindCapsForAgent_OrderingAndFilter(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id string, issuedAt time.Time, expiresAt time.Time) *contracts.Capability {
		return &contracts.Capability{
			CapID:     id,
			Executor:  contracts.ExecutorRef{AgentID: "agent-1", AgentPubKey: "pk-1"},
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}
	}

	require.NoError(t, s.PutCapability(mk("older", now.Add(-2*time.Hour), now.Add(time.Hour))))
	require.NoError(t, s.PutCapability(mk("newer-long", now.Add(-1*time.Hour), now.Add(2*time.Hour))))
	require.NoError(t, s.PutCapability(mk("newer-short", now.Add(-1*time.Hour), now.Add(time.Hour))))
	require.NoError(t, s.PutCapability(mk("revoked-newest", now, now.Add(3*time.Hour))))
	require.NoError(t, s.PutCapability(&contracts.Capability{
		CapID:     "other-agent",
		Executor:  contracts.ExecutorRef{AgentID: "agent-2", AgentPubKey: "pk-1"},
		IssuedAt:  now,
		ExpiresAt: now.Add(3 * time.Hour),
	}))
	_, err := s.Revoke("revoked-newest")
	require.NoError(t, err)

	// belongs to a different agent, must never show up
	require.NoError(t, s.PutCapability(&contracts.Capability{
		CapID:   "other-agent-2",
		Executor: contracts.ExecutorRef{AgentID: "agent-2", AgentPubKey: "pk-2"},
	}))

	matches := s.FindCapsForAgent("agent-1", "pk-1")
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.CapID
	}

	// unrevoked first (newer-short, newer-long tie on issued_at -> earlier
	// expiry first), then older, then revoked last
	assert.Equal(t, []string{"newer-short", "newer-long", "older", "revoked-newest"}, ids)
}

func TestAppendAndListReceipts(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r1 := &contracts.Receipt{ReceiptID: "r1", Ts: now, Event: contracts.EventActionAttempt}
	r2 := &contracts.Receipt{ReceiptID: "r2", Ts: now.Add(time.Minute), Event: contracts.EventActionAllowed}

	require.NoError(t, s.AppendReceipt(r1))
	require.NoError(t, s.AppendReceipt(r2))

	all, err := s.ListReceipts()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ReceiptID)
	assert.Equal(t, "r2", all[1].ReceiptID)
}

func TestListReceiptsPage_CursorAndSince(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.AppendReceipt(&contracts.Receipt{
			ReceiptID: id,
			Ts:        base.Add(time.Duration(i) * time.Minute),
			Event:     contracts.EventActionAllowed,
		}))
	}

	page, err := s.ListReceiptsPage(base, "r1", 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r2", page[0].ReceiptID)
	assert.Equal(t, "r3", page[1].ReceiptID)

	page, err = s.ListReceiptsPage(base.Add(90*time.Second), "", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "r3", page[0].ReceiptID)

	page, err = s.ListReceiptsPage(base, "", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "r1", page[0].ReceiptID)
}

func TestListReceipts_SkipsMalformedTrailingLine(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendReceipt(&contracts.Receipt{ReceiptID: "r1", Event: contracts.EventActionAllowed}))

	f, err := os.OpenFile(s.auditLogPath(), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"receipt_id": "r2", "event":` + "\n") // truncated, as from a crash mid-write
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := s.ListReceipts()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "r1", all[0].ReceiptID)
}

func TestOpen_CorruptCapabilitiesFileDegradesToEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s1.PutCapability(&contracts.Capability{CapID: "cap-1"}))

	require.NoError(t, os.WriteFile(dir+"/"+capabilitiesFile, []byte("{not valid json"), 0o600))

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, s2.ListCapabilities())

	// the store is still usable after the corruption is detected
	require.NoError(t, s2.PutCapability(&contracts.Capability{CapID: "cap-2"}))
	_, ok := s2.GetCapability("cap-2")
	assert.True(t, ok)
}

func TestProbe(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Probe())
}
