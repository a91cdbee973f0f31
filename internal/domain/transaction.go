/**
 * @description
 * This file defines the core domain models for the settlement-service.
 * The TransactionRecord is the append-only journal entry behind every
 * balance mutation; its Kind is a closed enum whose signed balance effect
 * is resolved in exactly one place so that a newly added kind cannot
 * silently bypass the settlement logic.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - A record's status leaves Pending/Processing exactly once; terminal
 *   records are never re-opened and never deleted. Corrections are new
 *   offsetting records.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the transaction kinds the engine settles.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindBonus      Kind = "bonus"
	KindProfit     Kind = "profit"
	KindPenalty    Kind = "penalty"
	KindInvestment Kind = "investment"
)

// Status is the lifecycle state of a TransactionRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is one a record can never leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// SignedDelta returns the signed balance effect of settling `amount` for the
// given kind: positive for credit kinds, negative for debit kinds. The switch
// is exhaustive on purpose; an unknown kind is an error rather than a silent
// zero so new kinds must be wired through here before they can settle.
func SignedDelta(kind Kind, amount int64) (int64, error) {
	switch kind {
	case KindDeposit, KindBonus, KindProfit:
		return amount, nil
	case KindWithdrawal, KindPenalty, KindInvestment:
		return -amount, nil
	}
	return 0, fmt.Errorf("unknown transaction kind %q", kind)
}

// TransactionRecord is the central journal entry for any money movement.
// It maps directly to the `transactions` table.
type TransactionRecord struct {
	ID                   uuid.UUID      `json:"id"`
	ExternalRef          string         `json:"external_ref"`
	AccountID            uuid.UUID      `json:"account_id"`
	Kind                 Kind           `json:"kind"`
	Amount               int64          `json:"amount"` // in cents
	Currency             string         `json:"currency"`
	Fees                 int64          `json:"fees"`       // in cents
	NetAmount            int64          `json:"net_amount"` // amount - fees, in cents
	Status               Status         `json:"status"`
	BalanceBefore        *int64         `json:"balance_before,omitempty"`
	BalanceAfter         *int64         `json:"balance_after,omitempty"`
	RelatedTransactionID *uuid.UUID     `json:"related_transaction_id,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	ProcessedAt          *time.Time     `json:"processed_at,omitempty"`
}

// IsCascade reports whether this record was generated as a side effect of
// settling another record. Cascades never cascade again; the generator
// refuses any trigger that already carries a back-reference.
func (t *TransactionRecord) IsCascade() bool {
	return t.RelatedTransactionID != nil
}

// FeeBreakdown is the deterministic fee decomposition stored in metadata at
// intake time. The same (amount, method, urgent) inputs always reproduce the
// same breakdown, which is what makes the journal replayable for audit.
type FeeBreakdown struct {
	BaseFee       int64 `json:"base_fee"`
	PercentageFee int64 `json:"percentage_fee"`
	UrgencyFee    int64 `json:"urgency_fee"`
	TotalFee      int64 `json:"total_fee"`
	NetAmount     int64 `json:"net_amount"`
}

// RiskLevel buckets the heuristic risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment is the score breakdown for a withdrawal intake. High risk
// flags the record for manual review; it never blocks intake.
type RiskAssessment struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors,omitempty"`
}

// IntakeRequest is the contract the route layer submits for a new
// deposit/withdrawal intent. ExternalRef is the caller-supplied idempotency
// key; retried network calls carry the same ref.
type IntakeRequest struct {
	ExternalRef    string         `json:"external_ref"`
	AccountID      uuid.UUID      `json:"account_id"`
	Kind           Kind           `json:"kind"`
	Amount         int64          `json:"amount"` // in cents
	Currency       string         `json:"currency"`
	Method         string         `json:"method"`
	Urgent         bool           `json:"urgent"`
	AccountDetails map[string]any `json:"account_details,omitempty"`
	Gateway        string         `json:"gateway,omitempty"`
	Device         string         `json:"device,omitempty"`
}

// IntakeResult is returned once a Pending journal entry has been committed.
type IntakeResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Status        Status          `json:"status"`
	Fees          int64           `json:"fees"`
	NetAmount     int64           `json:"net_amount"`
	Risk          *RiskAssessment `json:"risk,omitempty"`
}

// DecisionAction is the admin's verdict on a pending record.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

// DecisionRequest is the admin approval contract for a single record.
type DecisionRequest struct {
	TransactionID  uuid.UUID      `json:"transaction_id"`
	Action         DecisionAction `json:"action"`
	AdjustedAmount *int64         `json:"adjusted_amount,omitempty"` // in cents
	BonusAmount    int64          `json:"bonus_amount,omitempty"`    // in cents
	Reason         string         `json:"reason,omitempty"`
}

// DecisionResult reports the authoritative post-commit state.
type DecisionResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        Status    `json:"status"`
	NewBalance    *int64    `json:"new_balance,omitempty"`
}

// BatchItemFailure captures one failed item of a batch decision.
type BatchItemFailure struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason"`
}

// BatchResult itemizes a batch decision; partial success is never collapsed
// into a single pass/fail.
type BatchResult struct {
	Successful []uuid.UUID        `json:"successful"`
	Failed     []BatchItemFailure `json:"failed"`
}
