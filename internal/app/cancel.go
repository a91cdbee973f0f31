/**
 * @description
 * Owner-initiated withdrawal cancellation. Only the owner of a Pending
 * withdrawal can cancel it, and only within the cancellation window after
 * submission. Once an admin has moved the record to Processing the window is
 * closed regardless of elapsed time. Cancellation settles the record as
 * Rejected with no balance effect.
 */

package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

// CancelWithdrawal lets the owning account withdraw a pending withdrawal
// intent.
func (s *Service) CancelWithdrawal(ctx context.Context, owner, transactionID uuid.UUID) (*domain.DecisionResult, error) {
	var result domain.DecisionResult

	err := s.repo.Atomically(ctx, func(ops store.Ops) error {
		rec, err := ops.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if rec.AccountID != owner {
			return ErrNotOwner
		}
		if rec.Kind != domain.KindWithdrawal {
			return ErrInvalidAction
		}
		if rec.Status.Terminal() {
			return ErrAlreadyProcessed
		}
		// Processing means an admin picked it up; a race between cancel and
		// approval resolves on the row lock, whichever side got there first.
		if rec.Status != domain.StatusPending {
			return ErrCancellationClosed
		}
		now := s.now().UTC()
		if now.Sub(rec.CreatedAt) > s.policies.CancelWindow {
			return ErrCancellationClosed
		}

		before := auditSnapshot(rec)
		rec.Status = domain.StatusRejected
		rec.ProcessedAt = &now
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		rec.Metadata["rejection_reason"] = "self-cancelled"
		rec.Metadata["cancelled_by_owner"] = true
		if err := ops.SettleTransaction(ctx, rec); err != nil {
			return err
		}
		ops.RecordAudit(ctx, s.newAuditEntry(owner.String(), "transaction.cancel", rec.ID, before, auditSnapshot(rec), domain.AuditInfo))

		result = domain.DecisionResult{TransactionID: rec.ID, Status: rec.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=cancel outcome=cancelled transaction_id=%s account_id=%s", result.TransactionID, owner)
	s.notify(ctx, TemplateTransactionRejected, owner, map[string]any{
		"transaction_id": result.TransactionID.String(),
		"reason":         "self-cancelled",
	})
	return &result, nil
}
