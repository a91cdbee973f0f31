/**
 * @description
 * Account-side domain models: the account whose single running balance the
 * engine owns, investment plans, referral relationships, claimable rewards,
 * and the audit entries written alongside every financial mutation.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the engine's view of a user account. Balance is the only
// mutable numeric field; it is never written outside an atomic unit.
type Account struct {
	ID          uuid.UUID  `json:"id"`
	Balance     int64      `json:"balance"` // in cents, non-negative
	Currency    string     `json:"currency"`
	PlanID      *uuid.UUID `json:"plan_id,omitempty"`
	ReferrerID  *uuid.UUID `json:"referrer_id,omitempty"`
	KYCVerified bool       `json:"kyc_verified"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Plan is an investment plan an account can be assigned to.
type Plan struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Price          int64     `json:"price"`           // in cents
	MinimumDeposit int64     `json:"minimum_deposit"` // in cents
}

// ReferralStatus is the lifecycle of a referral relationship.
type ReferralStatus string

const (
	ReferralPending ReferralStatus = "pending"
	ReferralPaid    ReferralStatus = "paid"
)

// Referral links a referred account back to its referrer. It transitions
// Pending -> Paid exactly once, inside the same atomic unit as the bonus
// credit it causes.
type Referral struct {
	ID                uuid.UUID      `json:"id"`
	ReferrerAccountID uuid.UUID      `json:"referrer_account_id"`
	ReferredAccountID uuid.UUID      `json:"referred_account_id"`
	Status            ReferralStatus `json:"status"`
	PaidTransactionID *uuid.UUID     `json:"paid_transaction_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// RewardSource identifies where a claimable reward came from.
type RewardSource string

const (
	RewardSourceTask     RewardSource = "task"
	RewardSourceReferral RewardSource = "referral"
)

// Reward is a one-shot claimable credit (approved task submission, referral
// payout). ClaimedTransactionID is the re-claim guard: once stamped, any
// further claim fails.
type Reward struct {
	ID                   uuid.UUID    `json:"id"`
	AccountID            uuid.UUID    `json:"account_id"`
	Source               RewardSource `json:"source"`
	Amount               int64        `json:"amount"` // in cents
	Currency             string       `json:"currency"`
	ClaimedTransactionID *uuid.UUID   `json:"claimed_transaction_id,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// AuditSeverity grades an audit entry.
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "info"
	AuditWarning  AuditSeverity = "warning"
	AuditCritical AuditSeverity = "critical"
)

// AuditEntry records who did what to which entity, with before/after
// snapshots. Written within the same atomic unit as the mutation it
// describes.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	EntityID  uuid.UUID      `json:"entity_id"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Severity  AuditSeverity  `json:"severity"`
	CreatedAt time.Time      `json:"created_at"`
}
