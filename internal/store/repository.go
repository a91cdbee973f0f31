/**
 * @description
 * This file defines the `Repository` interface, the data-access contract for
 * the settlement engine, and the `Ops` interface exposed inside an atomic
 * unit. Splitting the two keeps the concurrency-critical operations (locked
 * reads, balance deltas, status transitions, cascade inserts, audit writes)
 * reachable only from within `Atomically`, so no caller can accidentally
 * read-modify-write a balance across transaction boundaries.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrRewardNotFound       = errors.New("reward not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
	ErrInsufficientBalance  = errors.New("insufficient balance")
)

// Ops is the set of operations available inside an atomic unit. Every method
// runs on the same underlying database transaction; they commit together or
// not at all.
type Ops interface {
	// GetTransactionForUpdate re-reads a record under a row lock. Two
	// concurrent decisions on the same record serialize here.
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error)
	// GetAccountForUpdate locks the account row for the rest of the atomic
	// unit. Taken before any first-approved-deposit counting so two
	// concurrent first deposits cannot both fire the referral bonus.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// ApplyBalanceDelta atomically shifts the account balance and returns the
	// new value. A debit that would take the balance negative fails with
	// ErrInsufficientBalance and writes nothing.
	ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	// SettleTransaction writes the terminal status, processing timestamp,
	// balance snapshots and updated metadata of a record.
	SettleTransaction(ctx context.Context, rec *domain.TransactionRecord) error
	// InsertTransaction appends a new journal record (used for cascades and
	// system-generated records inside the unit).
	InsertTransaction(ctx context.Context, rec *domain.TransactionRecord) error
	// CountApprovedDeposits counts already-committed approved deposits for
	// the account, excluding the given record.
	CountApprovedDeposits(ctx context.Context, accountID uuid.UUID, excluding uuid.UUID) (int, error)
	// FindPendingReferralByReferred returns the pending referral row for a
	// referred account, locked, or nil when none exists.
	FindPendingReferralByReferred(ctx context.Context, referredAccountID uuid.UUID) (*domain.Referral, error)
	// MarkReferralPaid transitions a referral Pending -> Paid, stamping the
	// bonus transaction that settled it.
	MarkReferralPaid(ctx context.Context, referralID, transactionID uuid.UUID) error
	// GetRewardForUpdate locks a claimable reward row.
	GetRewardForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reward, error)
	// MarkRewardClaimed stamps the reward with the transaction that consumed
	// it, preventing re-claim.
	MarkRewardClaimed(ctx context.Context, rewardID, transactionID uuid.UUID) error
	// UpdateAccountPlan reassigns the account's plan reference.
	UpdateAccountPlan(ctx context.Context, accountID, planID uuid.UUID) error
	// GetPlan reads plan reference data within the unit.
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	// RecordAudit appends an audit entry. A failed audit write is logged and
	// surfaced to health reporting but never aborts the surrounding unit.
	RecordAudit(ctx context.Context, entry *domain.AuditEntry)
}

// Repository defines the data-access methods for the settlement engine.
type Repository interface {
	// Atomically runs fn inside one database transaction. The unit commits
	// when fn returns nil and fully rolls back otherwise.
	Atomically(ctx context.Context, fn func(ops Ops) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error)
	// FindTransactionByExternalRef returns the most recent record carrying
	// the external reference, or ErrTransactionNotFound.
	FindTransactionByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error)
	// InsertIntake appends a Pending record. A live (non-failed) record with
	// the same external reference fails with ErrDuplicateTransaction.
	InsertIntake(ctx context.Context, rec *domain.TransactionRecord) error
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error)

	// SumApprovedAmountSince aggregates approved same-kind amounts in a
	// rolling window; pending and rejected records do not count.
	SumApprovedAmountSince(ctx context.Context, accountID uuid.UUID, kind domain.Kind, since time.Time) (int64, error)
	// CountRecentWithdrawals counts withdrawal intents created in the window
	// regardless of status (risk heuristic input).
	CountRecentWithdrawals(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)

	GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
}
