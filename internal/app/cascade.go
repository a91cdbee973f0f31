/**
 * @description
 * Cascade generation: bonus records created as a side effect of settling a
 * trigger record, inside the trigger's own atomic unit. A cascade carries a
 * back-reference to its trigger and is born Approved with its balance effect
 * already applied. Cascades never cascade: a trigger that itself carries a
 * back-reference is refused, which bounds every settlement to one hop.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

// generateCascade creates an Approved bonus record for the beneficiary and
// applies its credit within the caller's atomic unit. The returned record
// carries its own balance snapshots so the journal stays replayable entry by
// entry.
func (s *Service) generateCascade(ctx context.Context, ops store.Ops, trigger *domain.TransactionRecord, beneficiary uuid.UUID, amount int64, reason string) (*domain.TransactionRecord, error) {
	if trigger.IsCascade() {
		return nil, fmt.Errorf("record %s is itself a cascade and cannot trigger another", trigger.ID)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("cascade amount must be positive, got %d", amount)
	}

	id := uuid.New()
	now := s.now().UTC()

	balanceBefore, err := currentBalance(ctx, ops, beneficiary)
	if err != nil {
		return nil, err
	}
	balanceAfter, err := ops.ApplyBalanceDelta(ctx, beneficiary, amount)
	if err != nil {
		return nil, err
	}

	rec := &domain.TransactionRecord{
		ID:          id,
		ExternalRef: fmt.Sprintf("sys:%s:%s", reason, id),
		AccountID:   beneficiary,
		Kind:        domain.KindBonus,
		Amount:      amount,
		Currency:    trigger.Currency,
		Fees:        0,
		NetAmount:   amount,
		Status:      domain.StatusApproved,
		Metadata: map[string]any{
			"cascade_reason": reason,
		},
		RelatedTransactionID: &trigger.ID,
		BalanceBefore:        &balanceBefore,
		BalanceAfter:         &balanceAfter,
		CreatedAt:            now,
		ProcessedAt:          &now,
	}
	if err := ops.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert cascade record: %w", err)
	}
	ops.RecordAudit(ctx, s.newAuditEntry("system", "transaction.cascade", rec.ID, nil, auditSnapshot(rec), domain.AuditInfo))
	return rec, nil
}

// currentBalance reads the beneficiary's balance inside the unit. When the
// beneficiary is the trigger's own account the row is already locked by the
// caller; for a different account (referral payout) this takes the lock.
func currentBalance(ctx context.Context, ops store.Ops, accountID uuid.UUID) (int64, error) {
	acct, err := ops.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}
