/**
 * @description
 * Rolling-window limit validation for intake. Aggregates count only
 * already-approved records of the same kind: pending and rejected intents
 * never consume limit headroom. Violations reject the intake before any
 * journal record is created.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
)

// LimitViolation names one breached limit.
type LimitViolation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LimitError carries the full violation list to the caller.
type LimitError struct {
	Violations []LimitViolation
}

func (e *LimitError) Error() string {
	if len(e.Violations) == 0 {
		return ErrLimitExceeded.Error()
	}
	return fmt.Sprintf("%s: %s", ErrLimitExceeded.Error(), e.Violations[0].Message)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// validateLimits evaluates per-transaction and rolling aggregate limits for
// the given kind. A kind without a configured policy is unlimited.
func (s *Service) validateLimits(ctx context.Context, accountID uuid.UUID, kind domain.Kind, amount int64) error {
	policy, ok := s.policies.Limits[kind]
	if !ok {
		return nil
	}

	var violations []LimitViolation
	if policy.MinPerTx > 0 && amount < policy.MinPerTx {
		violations = append(violations, LimitViolation{
			Code:    "below_minimum",
			Message: fmt.Sprintf("amount %d is below the per-transaction minimum %d", amount, policy.MinPerTx),
		})
	}
	if policy.MaxPerTx > 0 && amount > policy.MaxPerTx {
		violations = append(violations, LimitViolation{
			Code:    "above_maximum",
			Message: fmt.Sprintf("amount %d exceeds the per-transaction maximum %d", amount, policy.MaxPerTx),
		})
	}

	now := s.now().UTC()
	if policy.DailyMax > 0 {
		used, err := s.repo.SumApprovedAmountSince(ctx, accountID, kind, now.Add(-24*time.Hour))
		if err != nil {
			return fmt.Errorf("daily limit lookup: %w", err)
		}
		if used+amount > policy.DailyMax {
			violations = append(violations, LimitViolation{
				Code:    "daily_limit",
				Message: fmt.Sprintf("amount %d would exceed the rolling daily limit %d (already approved: %d)", amount, policy.DailyMax, used),
			})
		}
	}
	if policy.MonthlyMax > 0 {
		used, err := s.repo.SumApprovedAmountSince(ctx, accountID, kind, now.Add(-30*24*time.Hour))
		if err != nil {
			return fmt.Errorf("monthly limit lookup: %w", err)
		}
		if used+amount > policy.MonthlyMax {
			violations = append(violations, LimitViolation{
				Code:    "monthly_limit",
				Message: fmt.Sprintf("amount %d would exceed the rolling monthly limit %d (already approved: %d)", amount, policy.MonthlyMax, used),
			})
		}
	}

	if len(violations) > 0 {
		return &LimitError{Violations: violations}
	}
	return nil
}
