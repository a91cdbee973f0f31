/**
 * @description
 * One-shot reward claiming. The reward row is locked for the whole unit, the
 * claimed-transaction stamp is the re-claim guard, and the credit lands as an
 * Approved bonus record in the same commit. Two concurrent claims of the same
 * reward serialize on the row lock; the loser sees the stamp and fails.
 */

package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/metrics"
	"github.com/trustvest/settlement-service/internal/store"
)

// ClaimReward converts a claimable reward into a settled bonus credit on the
// owner's balance, exactly once.
func (s *Service) ClaimReward(ctx context.Context, owner, rewardID uuid.UUID) (*domain.TransactionRecord, error) {
	var claimed *domain.TransactionRecord

	err := s.repo.Atomically(ctx, func(ops store.Ops) error {
		reward, err := ops.GetRewardForUpdate(ctx, rewardID)
		if err != nil {
			return err
		}
		if reward.AccountID != owner {
			return ErrNotOwner
		}
		if reward.ClaimedTransactionID != nil {
			return ErrAlreadyClaimed
		}

		acct, err := ops.GetAccountForUpdate(ctx, reward.AccountID)
		if err != nil {
			return err
		}

		id := uuid.New()
		now := s.now().UTC()
		balanceBefore := acct.Balance
		balanceAfter, err := ops.ApplyBalanceDelta(ctx, reward.AccountID, reward.Amount)
		if err != nil {
			return err
		}

		currency := reward.Currency
		if currency == "" {
			currency = acct.Currency
		}
		rec := &domain.TransactionRecord{
			ID:          id,
			ExternalRef: "reward:" + reward.ID.String(),
			AccountID:   reward.AccountID,
			Kind:        domain.KindBonus,
			Amount:      reward.Amount,
			Currency:    currency,
			NetAmount:   reward.Amount,
			Status:      domain.StatusApproved,
			Metadata: map[string]any{
				"reward_id":     reward.ID.String(),
				"reward_source": string(reward.Source),
			},
			BalanceBefore: &balanceBefore,
			BalanceAfter:  &balanceAfter,
			CreatedAt:     now,
			ProcessedAt:   &now,
		}
		if err := ops.InsertTransaction(ctx, rec); err != nil {
			return err
		}
		if err := ops.MarkRewardClaimed(ctx, reward.ID, rec.ID); err != nil {
			return err
		}
		ops.RecordAudit(ctx, s.newAuditEntry(owner.String(), "reward.claim", reward.ID, map[string]any{
			"claimed": false,
		}, map[string]any{
			"claimed":        true,
			"transaction_id": rec.ID.String(),
			"amount":         reward.Amount,
		}, domain.AuditInfo))

		claimed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionSettled(string(domain.KindBonus), string(domain.StatusApproved))
	log.Printf("level=info component=rewards outcome=claimed reward_id=%s transaction_id=%s account_id=%s amount=%d",
		rewardID, claimed.ID, owner, claimed.Amount)
	s.notify(ctx, TemplateRewardClaimed, owner, map[string]any{
		"reward_id":      rewardID.String(),
		"transaction_id": claimed.ID.String(),
		"amount":         claimed.Amount,
	})
	return claimed, nil
}
