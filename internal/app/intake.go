/**
 * @description
 * Intake: turns a caller's deposit/withdrawal intent into a Pending journal
 * record. The pipeline is validation -> rate limit -> idempotency check ->
 * fee calculation -> rolling-window limits -> risk scoring -> persist.
 * Nothing is persisted when validation or limits reject, so a failed intake
 * leaves no trace; a committed Pending record is the idempotency barrier
 * for retried submissions.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

// intakeKinds are the kinds callers may submit directly. Bonus, profit,
// penalty and investment records are system-generated.
var intakeKinds = map[domain.Kind]bool{
	domain.KindDeposit:    true,
	domain.KindWithdrawal: true,
}

// SubmitIntake admits a transaction intent into the journal as Pending.
func (s *Service) SubmitIntake(ctx context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error) {
	if err := validateIntake(req); err != nil {
		return nil, err
	}

	if req.Kind == domain.KindWithdrawal && s.rateLimiter != nil && s.policies.WithdrawalRatePerMin > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "withdrawal_intake", req.AccountID.String(), s.policies.WithdrawalRatePerMin, time.Minute)
		if err != nil {
			// A broken limiter must not take intake down with it.
			log.Printf("level=warn component=intake msg=\"rate limiter unavailable; admitting\" account_id=%s err=%v", req.AccountID, err)
		} else if count > s.policies.WithdrawalRatePerMin {
			log.Printf("level=warn component=intake outcome=reject reason=rate_limited account_id=%s retry_after_s=%d", req.AccountID, retryAfter)
			return nil, ErrRateLimited
		}
	}

	// Idempotency guard: a live record with the same external reference means
	// the economic event is already journaled. Only a failed prior attempt is
	// treated as a retry.
	if existing, err := s.repo.FindTransactionByExternalRef(ctx, req.ExternalRef); err == nil {
		if existing.Status != domain.StatusFailed {
			return nil, store.ErrDuplicateTransaction
		}
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	acct, err := s.repo.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = acct.Currency
	}

	fees := CalculateFees(req.Amount, req.Method, req.Urgent)
	if err := s.validateLimits(ctx, req.AccountID, req.Kind, req.Amount); err != nil {
		return nil, err
	}
	// The net amount is what settlement later moves. An amount the fees
	// swallow entirely would settle as a zero or negative delta.
	if fees.NetAmount <= 0 {
		return nil, fmt.Errorf("%w: amount %d does not cover the total fee of %d", ErrInvalidIntake, req.Amount, fees.TotalFee)
	}

	metadata := map[string]any{
		"method": req.Method,
		"urgent": req.Urgent,
		"fees": map[string]any{
			"base_fee":       fees.BaseFee,
			"percentage_fee": fees.PercentageFee,
			"urgency_fee":    fees.UrgencyFee,
			"total_fee":      fees.TotalFee,
		},
	}
	if req.Gateway != "" {
		metadata["gateway"] = req.Gateway
	}
	if req.Device != "" {
		metadata["device"] = req.Device
	}
	if len(req.AccountDetails) > 0 {
		metadata["account_details"] = req.AccountDetails
	}

	var risk *domain.RiskAssessment
	if req.Kind == domain.KindWithdrawal {
		assessment, err := s.assessWithdrawalRisk(ctx, acct, req.Amount)
		if err != nil {
			return nil, err
		}
		risk = &assessment
		metadata["risk_score"] = assessment.Score
		metadata["risk_level"] = string(assessment.Level)
		if len(assessment.Factors) > 0 {
			metadata["risk_factors"] = assessment.Factors
		}
		if assessment.Level == domain.RiskHigh {
			metadata["manual_review"] = true
		}
	}

	rec := &domain.TransactionRecord{
		ID:          uuid.New(),
		ExternalRef: req.ExternalRef,
		AccountID:   req.AccountID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Currency:    currency,
		Fees:        fees.TotalFee,
		NetAmount:   fees.NetAmount,
		Status:      domain.StatusPending,
		Metadata:    metadata,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.InsertIntake(ctx, rec); err != nil {
		return nil, err
	}

	log.Printf("level=info component=intake outcome=accepted transaction_id=%s account_id=%s kind=%s amount=%d net=%d",
		rec.ID, rec.AccountID, rec.Kind, rec.Amount, rec.NetAmount)

	if risk != nil && risk.Level == domain.RiskHigh {
		// The alert is for the review queue, not the account holder; the
		// audience marker lets the notification service route it there.
		s.notify(ctx, TemplateWithdrawalFlagged, req.AccountID, map[string]any{
			"audience":       "admin",
			"account_id":     req.AccountID.String(),
			"transaction_id": rec.ID.String(),
			"amount":         rec.Amount,
			"risk_score":     risk.Score,
			"risk_factors":   risk.Factors,
		})
	}

	return &domain.IntakeResult{
		TransactionID: rec.ID,
		Status:        rec.Status,
		Fees:          rec.Fees,
		NetAmount:     rec.NetAmount,
		Risk:          risk,
	}, nil
}

func validateIntake(req domain.IntakeRequest) error {
	if strings.TrimSpace(req.ExternalRef) == "" {
		return fmt.Errorf("%w: external reference is required", ErrInvalidIntake)
	}
	if req.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account id is required", ErrInvalidIntake)
	}
	if !intakeKinds[req.Kind] {
		return fmt.Errorf("%w: kind %q cannot be submitted directly", ErrInvalidIntake, req.Kind)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntake)
	}
	return nil
}
