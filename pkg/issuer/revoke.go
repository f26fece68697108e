package issuer

import (
	"github.com/google/uuid"

	"github.com/Connerlevi/capnet/pkg/apierr"
	"github.com/Connerlevi/capnet/pkg/contracts"
)

// Revoke adds capID to the revocation set and emits a CAP_REVOKED
// receipt. It returns CAP_NOT_FOUND if capID doesn't exist, and
// ALREADY_REVOKED (without re-emitting a receipt) if it is already
// revoked.
func (i *Issuer) Revoke(capID string) error {
	cap, ok := i.store.GetCapability(capID)
	if !ok {
		return apierr.CapNotFound(capID)
	}

	already, err := i.store.Revoke(capID)
	if err != nil {
		return apierr.StoreError(err)
	}
	if already {
		return apierr.AlreadyRevoked(capID)
	}

	receipt := &contracts.Receipt{
		ReceiptID: uuid.New().String(),
		Ts:        i.now(),
		Event:     contracts.EventCapRevoked,
		CapID:     capID,
		AgentID:   cap.Executor.AgentID,
	}
	if err := i.store.AppendReceipt(receipt); err != nil {
		i.log.Error("issuer: failed to append CAP_REVOKED receipt", "cap_id", capID, "error", err)
		return apierr.StoreError(err)
	}

	i.log.Info("issuer: revoked capability", "cap_id", capID, "agent_id", cap.Executor.AgentID)
	return nil
}
