/**
 * @description
 * This file contains the core settlement engine for the settlement-service.
 * The `Service` struct orchestrates intake, approval, cascades, reward
 * claims and plan switches, coordinating between the journal repository,
 * the best-effort notifier and the intake rate limiter.
 *
 * Key properties:
 * - Every balance mutation happens inside a repository atomic unit together
 *   with the journal write and the audit entry that describes it.
 * - Notifications are dispatched only after commit and never influence the
 *   financial result.
 * - The acting admin or owner is an explicit parameter on every mutating
 *   call; there is no ambient actor state.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/metrics"
	"github.com/trustvest/settlement-service/internal/store"
)

var (
	ErrAlreadyProcessed    = errors.New("transaction already processed")
	ErrAlreadyClaimed      = errors.New("reward already claimed")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInvalidIntake       = errors.New("invalid intake request")
	ErrLimitExceeded       = errors.New("transaction limits exceeded")
	ErrNotOwner            = errors.New("transaction does not belong to caller")
	ErrCancellationClosed  = errors.New("cancellation window closed")
	ErrRateLimited         = errors.New("too many requests")
	ErrBelowMinimumDeposit = errors.New("investment cost below target plan minimum deposit")
)

// Notification template kinds dispatched post-commit.
const (
	TemplateTransactionApproved = "transaction_approved"
	TemplateTransactionRejected = "transaction_rejected"
	TemplateWithdrawalFlagged   = "withdrawal_flagged"
	TemplateReferralBonusPaid   = "referral_bonus_paid"
	TemplateRewardClaimed       = "reward_claimed"
	TemplatePlanSwitched        = "plan_switched"
)

// Notifier is the best-effort side channel for user and admin messages.
// Implementations must be safe to call after commit; failures are logged by
// the engine and never surfaced to callers.
type Notifier interface {
	Notify(ctx context.Context, template string, recipient uuid.UUID, variables map[string]any) error
}

// RateLimiter throttles intake per account. A nil limiter disables limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// LimitPolicy bounds a single kind's intake amounts.
type LimitPolicy struct {
	MinPerTx   int64
	MaxPerTx   int64
	DailyMax   int64 // rolling 24h aggregate of approved records
	MonthlyMax int64 // rolling 30d aggregate of approved records
}

// RiskPolicy tunes the withdrawal risk heuristic.
type RiskPolicy struct {
	LargeAmountThreshold int64         // cents; exceeding adds to the score
	NewAccountAge        time.Duration // accounts younger than this add to the score
	RecentWindow         time.Duration // lookback for the frequency factor
	RecentMax            int           // withdrawals above this count add to the score
}

// ReferralPolicy controls the first-deposit referral bonus.
type ReferralPolicy struct {
	PercentBps int64 // bonus as basis points of the deposit's final amount
	CapCents   int64 // absolute ceiling
}

// Policies bundles the engine's tunables, loaded from configuration.
type Policies struct {
	Limits               map[domain.Kind]LimitPolicy
	Risk                 RiskPolicy
	Referral             ReferralPolicy
	CancelWindow         time.Duration
	WithdrawalRatePerMin int
}

// Service provides the core settlement logic.
type Service struct {
	repo        store.Repository
	notifier    Notifier
	rateLimiter RateLimiter
	policies    Policies

	now func() time.Time
}

// NewService creates a new settlement service instance.
func NewService(repo store.Repository, notifier Notifier, policies Policies) *Service {
	if policies.CancelWindow <= 0 {
		policies.CancelWindow = time.Hour
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		policies: policies,
		now:      time.Now,
	}
}

// SetRateLimiter installs a distributed intake rate limiter.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// GetTransaction returns a single journal record.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions returns an account's journal entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error) {
	return s.repo.ListTransactionsByAccount(ctx, accountID, limit, offset)
}

// notify dispatches a best-effort notification. Failures are logged and
// counted, never returned: the financial commit has already succeeded.
func (s *Service) notify(ctx context.Context, template string, recipient uuid.UUID, variables map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, template, recipient, variables); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification dispatch failed\" template=%s recipient=%s err=%v",
			template, recipient, err)
		metrics.NotificationFailed()
	}
}

func auditSnapshot(rec *domain.TransactionRecord) map[string]any {
	snap := map[string]any{
		"status":     string(rec.Status),
		"amount":     rec.Amount,
		"net_amount": rec.NetAmount,
	}
	if rec.BalanceAfter != nil {
		snap["balance_after"] = *rec.BalanceAfter
	}
	return snap
}

func (s *Service) newAuditEntry(actor, action string, entityID uuid.UUID, before, after map[string]any, severity domain.AuditSeverity) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:        uuid.New(),
		Actor:     actor,
		Action:    action,
		EntityID:  entityID,
		Before:    before,
		After:     after,
		Severity:  severity,
		CreatedAt: s.now().UTC(),
	}
}
