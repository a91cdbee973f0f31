/**
 * @description
 * Investment plan switching. The cost of a switch is the price difference
 * between the target and the current plan, never negative; downgrades are
 * free and never refund. A paid switch debits the balance and journals an
 * Approved investment record in the same atomic unit as the plan
 * reassignment.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/metrics"
	"github.com/trustvest/settlement-service/internal/store"
)

// SwitchPlanResult reports the outcome of a plan switch.
type SwitchPlanResult struct {
	PlanID        uuid.UUID  `json:"plan_id"`
	Cost          int64      `json:"cost"` // in cents
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	NewBalance    int64      `json:"new_balance"`
}

// SwitchPlan moves the account onto the target plan, charging the price
// difference when upgrading.
func (s *Service) SwitchPlan(ctx context.Context, owner, targetPlanID uuid.UUID) (*SwitchPlanResult, error) {
	var (
		result SwitchPlanResult
		target *domain.Plan
	)

	err := s.repo.Atomically(ctx, func(ops store.Ops) error {
		var err error
		target, err = ops.GetPlan(ctx, targetPlanID)
		if err != nil {
			return err
		}

		acct, err := ops.GetAccountForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		if acct.PlanID != nil && *acct.PlanID == target.ID {
			return fmt.Errorf("%w: account already on plan %s", ErrInvalidAction, target.ID)
		}

		var currentPrice int64
		var beforePlan any
		if acct.PlanID != nil {
			current, err := ops.GetPlan(ctx, *acct.PlanID)
			if err != nil {
				return err
			}
			currentPrice = current.Price
			beforePlan = current.ID.String()
		}

		cost := target.Price - currentPrice
		if cost < 0 {
			cost = 0
		}
		result = SwitchPlanResult{PlanID: target.ID, Cost: cost, NewBalance: acct.Balance}

		if cost > 0 {
			if target.MinimumDeposit > 0 && cost < target.MinimumDeposit {
				return fmt.Errorf("%w: cost %d is below minimum %d", ErrBelowMinimumDeposit, cost, target.MinimumDeposit)
			}

			id := uuid.New()
			now := s.now().UTC()
			balanceBefore := acct.Balance
			balanceAfter, err := ops.ApplyBalanceDelta(ctx, owner, -cost)
			if err != nil {
				return err
			}
			rec := &domain.TransactionRecord{
				ID:          id,
				ExternalRef: "plan-switch:" + id.String(),
				AccountID:   owner,
				Kind:        domain.KindInvestment,
				Amount:      cost,
				Currency:    acct.Currency,
				NetAmount:   cost,
				Status:      domain.StatusApproved,
				Metadata: map[string]any{
					"plan_id":    target.ID.String(),
					"plan_name":  target.Name,
					"plan_price": target.Price,
				},
				BalanceBefore: &balanceBefore,
				BalanceAfter:  &balanceAfter,
				CreatedAt:     now,
				ProcessedAt:   &now,
			}
			if err := ops.InsertTransaction(ctx, rec); err != nil {
				return err
			}
			result.TransactionID = &rec.ID
			result.NewBalance = balanceAfter
		}

		if err := ops.UpdateAccountPlan(ctx, owner, target.ID); err != nil {
			return err
		}
		ops.RecordAudit(ctx, s.newAuditEntry(owner.String(), "plan.switch", owner, map[string]any{
			"plan_id": beforePlan,
		}, map[string]any{
			"plan_id": target.ID.String(),
			"cost":    cost,
		}, domain.AuditInfo))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.TransactionID != nil {
		metrics.TransactionSettled(string(domain.KindInvestment), string(domain.StatusApproved))
	}
	log.Printf("level=info component=plans outcome=switched account_id=%s plan_id=%s cost=%d", owner, result.PlanID, result.Cost)
	s.notify(ctx, TemplatePlanSwitched, owner, map[string]any{
		"plan_id":   result.PlanID.String(),
		"plan_name": target.Name,
		"cost":      result.Cost,
	})
	return &result, nil
}
