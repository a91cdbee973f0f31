/**
 * @description
 * The approval workflow: drives a Pending/Processing journal record to a
 * terminal state as one atomic unit. The record is re-read under a row lock
 * so concurrent decisions serialize, the account row is locked before any
 * first-deposit counting so referral bonuses fire at most once, and the
 * balance is re-checked at commit time so a stale intake-time read can
 * never overdraw. Notifications go out only after the unit commits.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/metrics"
	"github.com/trustvest/settlement-service/internal/store"
)

// postCommitNote is a notification deferred until after commit.
type postCommitNote struct {
	template  string
	recipient uuid.UUID
	variables map[string]any
}

// Decide applies an admin's approve/reject verdict to a single record.
// The actor is the authenticated admin identity, threaded explicitly.
func (s *Service) Decide(ctx context.Context, actor string, req domain.DecisionRequest) (*domain.DecisionResult, error) {
	if err := validateDecision(actor, req); err != nil {
		return nil, err
	}

	var (
		result         domain.DecisionResult
		notes          []postCommitNote
		settledKind    domain.Kind
		cascadeReasons []string
	)

	err := s.repo.Atomically(ctx, func(ops store.Ops) error {
		notes = notes[:0]
		cascadeReasons = cascadeReasons[:0]

		rec, err := ops.GetTransactionForUpdate(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		// Two admins racing on the same record serialize on the row lock;
		// the loser observes the terminal state here.
		if rec.Status.Terminal() {
			return ErrAlreadyProcessed
		}
		settledKind = rec.Kind
		now := s.now().UTC()
		before := auditSnapshot(rec)
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}

		if req.Action == domain.ActionReject {
			rec.Status = domain.StatusRejected
			rec.ProcessedAt = &now
			rec.Metadata["rejection_reason"] = req.Reason
			if err := ops.SettleTransaction(ctx, rec); err != nil {
				return err
			}
			ops.RecordAudit(ctx, s.newAuditEntry(actor, "transaction.reject", rec.ID, before, auditSnapshot(rec), domain.AuditInfo))
			result = domain.DecisionResult{TransactionID: rec.ID, Status: rec.Status}
			notes = append(notes, postCommitNote{
				template:  TemplateTransactionRejected,
				recipient: rec.AccountID,
				variables: map[string]any{"transaction_id": rec.ID.String(), "reason": req.Reason},
			})
			return nil
		}

		// Approve: lock the account row for the rest of the unit.
		acct, err := ops.GetAccountForUpdate(ctx, rec.AccountID)
		if err != nil {
			return err
		}

		finalAmount := rec.NetAmount
		if req.AdjustedAmount != nil {
			finalAmount = *req.AdjustedAmount
			rec.Metadata["adjusted_amount"] = finalAmount
		}
		// Intake rejects fee-swallowed amounts, so a non-positive net here
		// means a hand-crafted or corrupted record. Never let it settle.
		if finalAmount <= 0 {
			return fmt.Errorf("%w: settlement amount %d must be positive", ErrInvalidAction, finalAmount)
		}
		delta, err := domain.SignedDelta(rec.Kind, finalAmount)
		if err != nil {
			return err
		}

		balanceBefore := acct.Balance
		newBalance, err := ops.ApplyBalanceDelta(ctx, rec.AccountID, delta)
		if err != nil {
			return err
		}
		rec.BalanceBefore = &balanceBefore
		rec.BalanceAfter = &newBalance

		if req.BonusAmount > 0 {
			bonusRec, err := s.generateCascade(ctx, ops, rec, rec.AccountID, req.BonusAmount, "approval_bonus")
			if err != nil {
				return err
			}
			cascadeReasons = append(cascadeReasons, "approval_bonus")
			rec.Metadata["bonus_transaction_id"] = bonusRec.ID.String()
		}

		// First-deposit referral bonus. The count runs under the account
		// row lock, so two concurrent first deposits cannot both see zero.
		if rec.Kind == domain.KindDeposit && !rec.IsCascade() && acct.ReferrerID != nil {
			prior, err := ops.CountApprovedDeposits(ctx, rec.AccountID, rec.ID)
			if err != nil {
				return err
			}
			if prior == 0 {
				bonus := s.referralBonusFor(finalAmount)
				if bonus > 0 {
					refRec, err := s.generateCascade(ctx, ops, rec, *acct.ReferrerID, bonus, "referral_first_deposit")
					if err != nil {
						return err
					}
					cascadeReasons = append(cascadeReasons, "referral_first_deposit")
					referral, err := ops.FindPendingReferralByReferred(ctx, rec.AccountID)
					if err != nil {
						return err
					}
					if referral != nil {
						if err := ops.MarkReferralPaid(ctx, referral.ID, refRec.ID); err != nil {
							return err
						}
					}
					notes = append(notes, postCommitNote{
						template:  TemplateReferralBonusPaid,
						recipient: *acct.ReferrerID,
						variables: map[string]any{"transaction_id": refRec.ID.String(), "amount": bonus},
					})
				}
			}
		}

		rec.Status = domain.StatusApproved
		rec.ProcessedAt = &now
		if err := ops.SettleTransaction(ctx, rec); err != nil {
			return err
		}
		ops.RecordAudit(ctx, s.newAuditEntry(actor, "transaction.approve", rec.ID, before, auditSnapshot(rec), domain.AuditInfo))

		result = domain.DecisionResult{TransactionID: rec.ID, Status: rec.Status, NewBalance: &newBalance}
		notes = append(notes, postCommitNote{
			template:  TemplateTransactionApproved,
			recipient: rec.AccountID,
			variables: map[string]any{
				"transaction_id": rec.ID.String(),
				"amount":         finalAmount,
				"new_balance":    newBalance,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionSettled(string(settledKind), string(result.Status))
	for _, reason := range cascadeReasons {
		metrics.CascadeGenerated(reason)
	}
	for _, note := range notes {
		s.notify(ctx, note.template, note.recipient, note.variables)
	}
	log.Printf("level=info component=approval outcome=%s transaction_id=%s actor=%s", result.Status, result.TransactionID, actor)
	return &result, nil
}

// StartProcessing marks a Pending record as being worked by an admin, which
// closes the owner's cancellation window.
func (s *Service) StartProcessing(ctx context.Context, actor string, transactionID uuid.UUID) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidAction)
	}
	return s.repo.Atomically(ctx, func(ops store.Ops) error {
		rec, err := ops.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return ErrAlreadyProcessed
		}
		if rec.Status == domain.StatusProcessing {
			return nil
		}
		before := auditSnapshot(rec)
		rec.Status = domain.StatusProcessing
		if err := ops.SettleTransaction(ctx, rec); err != nil {
			return err
		}
		ops.RecordAudit(ctx, s.newAuditEntry(actor, "transaction.start_processing", rec.ID, before, auditSnapshot(rec), domain.AuditInfo))
		return nil
	})
}

// BatchDecide applies one action to many records with per-item isolation:
// each record runs through its own atomic unit, and one failure never
// aborts the rest. The result is always itemized.
func (s *Service) BatchDecide(ctx context.Context, actor string, ids []uuid.UUID, action domain.DecisionAction, reason string) (*domain.BatchResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidAction)
	}

	result := &domain.BatchResult{}
	for _, id := range ids {
		_, err := s.Decide(ctx, actor, domain.DecisionRequest{
			TransactionID: id,
			Action:        action,
			Reason:        reason,
		})
		if err != nil {
			result.Failed = append(result.Failed, domain.BatchItemFailure{
				TransactionID: id,
				Reason:        decisionFailureReason(err),
			})
			continue
		}
		result.Successful = append(result.Successful, id)
	}
	log.Printf("level=info component=approval msg=\"batch decision finished\" actor=%s action=%s ok=%d failed=%d",
		actor, action, len(result.Successful), len(result.Failed))
	return result, nil
}

func (s *Service) referralBonusFor(finalAmount int64) int64 {
	bonus := finalAmount * s.policies.Referral.PercentBps / 10000
	if cap := s.policies.Referral.CapCents; cap > 0 && bonus > cap {
		bonus = cap
	}
	return bonus
}

func validateDecision(actor string, req domain.DecisionRequest) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidAction)
	}
	switch req.Action {
	case domain.ActionApprove:
		if req.AdjustedAmount != nil && *req.AdjustedAmount <= 0 {
			return fmt.Errorf("%w: adjusted amount must be positive", ErrInvalidAction)
		}
		if req.BonusAmount < 0 {
			return fmt.Errorf("%w: bonus amount cannot be negative", ErrInvalidAction)
		}
	case domain.ActionReject:
		if strings.TrimSpace(req.Reason) == "" {
			return fmt.Errorf("%w: rejection requires a reason", ErrInvalidAction)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidAction, req.Action)
	}
	return nil
}

// decisionFailureReason maps an error to the stable code reported per batch
// item.
func decisionFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		return "AlreadyProcessed"
	case errors.Is(err, store.ErrTransactionNotFound):
		return "NotFound"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrInvalidAction):
		return "InvalidAction"
	}
	return err.Error()
}
