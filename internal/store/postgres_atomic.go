/**
 * @description
 * The atomic unit: `Atomically` opens one database transaction and hands the
 * closure an `Ops` view scoped to it. Journal writes, balance deltas,
 * cascades, referral transitions and audit entries issued through that view
 * commit together or not at all. Row locks (`SELECT ... FOR UPDATE`) on the
 * transaction and account rows provide the serialization the engine needs
 * under read-committed isolation.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/metrics"
)

// Atomically runs fn inside one pgx transaction. The unit commits when fn
// returns nil and fully rolls back otherwise.
func (r *PostgresRepository) Atomically(ctx context.Context, fn func(ops Ops) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin atomic unit: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxOps{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit atomic unit: %w", err)
	}
	return nil
}

type pgxOps struct {
	tx querier
}

func (o *pgxOps) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	return getTransaction(ctx, o.tx, id, true)
}

func (o *pgxOps) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, o.tx, id, true)
}

// ApplyBalanceDelta shifts the balance in one guarded UPDATE. The predicate
// keeps the balance non-negative; distinguishing a missing account from an
// overdraft takes a second lookup only on the failure path.
func (o *pgxOps) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	var newBalance int64
	err := o.tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance`,
		accountID, delta,
	).Scan(&newBalance)
	if err == nil {
		return newBalance, nil
	}
	if _, lookupErr := getAccount(ctx, o.tx, accountID, false); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrInsufficientBalance
}

func (o *pgxOps) SettleTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}
	tag, err := o.tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, balance_before = $3, balance_after = $4, metadata = $5, processed_at = $6
		WHERE id = $1`,
		rec.ID, rec.Status, rec.BalanceBefore, rec.BalanceAfter, metadata, rec.ProcessedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (o *pgxOps) InsertTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	return insertTransaction(ctx, o.tx, rec)
}

func (o *pgxOps) CountApprovedDeposits(ctx context.Context, accountID uuid.UUID, excluding uuid.UUID) (int, error) {
	var count int
	err := o.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = $1 AND kind = $2 AND status = $3 AND id <> $4`,
		accountID, domain.KindDeposit, domain.StatusApproved, excluding,
	).Scan(&count)
	return count, err
}

func (o *pgxOps) FindPendingReferralByReferred(ctx context.Context, referredAccountID uuid.UUID) (*domain.Referral, error) {
	var ref domain.Referral
	err := o.tx.QueryRow(ctx, `
		SELECT id, referrer_account_id, referred_account_id, status, paid_transaction_id, created_at
		FROM referrals
		WHERE referred_account_id = $1 AND status = $2
		FOR UPDATE`,
		referredAccountID, domain.ReferralPending,
	).Scan(&ref.ID, &ref.ReferrerAccountID, &ref.ReferredAccountID, &ref.Status, &ref.PaidTransactionID, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

func (o *pgxOps) MarkReferralPaid(ctx context.Context, referralID, transactionID uuid.UUID) error {
	tag, err := o.tx.Exec(ctx, `
		UPDATE referrals SET status = $2, paid_transaction_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		referralID, domain.ReferralPaid, transactionID, domain.ReferralPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral %s is not pending", referralID)
	}
	return nil
}

func (o *pgxOps) GetRewardForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	var reward domain.Reward
	err := o.tx.QueryRow(ctx, `
		SELECT id, account_id, source, amount, currency, claimed_transaction_id, created_at
		FROM rewards WHERE id = $1
		FOR UPDATE`,
		id,
	).Scan(&reward.ID, &reward.AccountID, &reward.Source, &reward.Amount, &reward.Currency, &reward.ClaimedTransactionID, &reward.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

func (o *pgxOps) MarkRewardClaimed(ctx context.Context, rewardID, transactionID uuid.UUID) error {
	tag, err := o.tx.Exec(ctx, `
		UPDATE rewards SET claimed_transaction_id = $2, updated_at = NOW()
		WHERE id = $1 AND claimed_transaction_id IS NULL`,
		rewardID, transactionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reward %s already claimed", rewardID)
	}
	return nil
}

func (o *pgxOps) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return getPlan(ctx, o.tx, id)
}

func (o *pgxOps) UpdateAccountPlan(ctx context.Context, accountID, planID uuid.UUID) error {
	tag, err := o.tx.Exec(ctx,
		`UPDATE accounts SET plan_id = $2, updated_at = NOW() WHERE id = $1`,
		accountID, planID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordAudit appends an audit entry under a savepoint. A failed statement
// would otherwise poison the surrounding transaction; audit unavailability
// must never block money movement, so the savepoint is rolled back, the
// failure logged, and the health gauge tripped instead.
func (o *pgxOps) RecordAudit(ctx context.Context, entry *domain.AuditEntry) {
	before, err := json.Marshal(entry.Before)
	if err != nil {
		log.Printf("level=error component=audit msg=\"encode before snapshot failed\" entity_id=%s err=%v", entry.EntityID, err)
		metrics.AuditWriteFailed()
		return
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		log.Printf("level=error component=audit msg=\"encode after snapshot failed\" entity_id=%s err=%v", entry.EntityID, err)
		metrics.AuditWriteFailed()
		return
	}

	if _, err := o.tx.Exec(ctx, `SAVEPOINT audit_write`); err != nil {
		log.Printf("level=error component=audit msg=\"savepoint failed\" entity_id=%s err=%v", entry.EntityID, err)
		metrics.AuditWriteFailed()
		return
	}
	_, err = o.tx.Exec(ctx, `
		INSERT INTO audit_entries (id, actor, action, entity_id, before, after, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Actor, entry.Action, entry.EntityID, before, after, entry.Severity, entry.CreatedAt,
	)
	if err != nil {
		if _, rbErr := o.tx.Exec(ctx, `ROLLBACK TO SAVEPOINT audit_write`); rbErr != nil {
			log.Printf("level=error component=audit msg=\"savepoint rollback failed\" entity_id=%s err=%v", entry.EntityID, rbErr)
		}
		log.Printf("level=error component=audit msg=\"audit write failed; continuing settlement\" actor=%s action=%s entity_id=%s err=%v",
			entry.Actor, entry.Action, entry.EntityID, err)
		metrics.AuditWriteFailed()
		return
	}
	if _, err := o.tx.Exec(ctx, `RELEASE SAVEPOINT audit_write`); err != nil {
		log.Printf("level=warn component=audit msg=\"savepoint release failed\" entity_id=%s err=%v", entry.EntityID, err)
	}
	metrics.AuditWriteSucceeded()
}
