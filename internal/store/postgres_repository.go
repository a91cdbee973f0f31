/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. The journal lives
 * in an append-mostly `transactions` table (only status and terminal-state
 * fields mutate, once); the account balance is a single numeric column
 * guarded by atomic UPDATEs; audit entries are appended alongside every
 * mutation.
 *
 * Idempotency is enforced by a partial unique index on external_ref scoped
 * to non-failed records, so a retry after a failed attempt is admitted while
 * a live duplicate is rejected:
 *
 *   CREATE UNIQUE INDEX transactions_external_ref_live
 *     ON transactions (external_ref) WHERE status <> 'failed';
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trustvest/settlement-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the row scanning
// helpers serve pool-scoped reads and in-transaction reads alike.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const transactionColumns = `id, external_ref, account_id, kind, amount, currency, fees, net_amount,
       status, balance_before, balance_after, related_transaction_id, metadata, created_at, processed_at`

func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		rec      domain.TransactionRecord
		metadata []byte
	)
	err := row.Scan(
		&rec.ID, &rec.ExternalRef, &rec.AccountID, &rec.Kind, &rec.Amount, &rec.Currency,
		&rec.Fees, &rec.NetAmount, &rec.Status, &rec.BalanceBefore, &rec.BalanceAfter,
		&rec.RelatedTransactionID, &metadata, &rec.CreatedAt, &rec.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return &rec, nil
}

func getTransaction(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanTransaction(q.QueryRow(ctx, query, id))
}

func getAccount(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Account, error) {
	query := `SELECT id, balance, currency, plan_id, referrer_id, kyc_verified, created_at
	          FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var acct domain.Account
	err := q.QueryRow(ctx, query, id).Scan(
		&acct.ID, &acct.Balance, &acct.Currency, &acct.PlanID, &acct.ReferrerID, &acct.KYCVerified, &acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func insertTransaction(ctx context.Context, q querier, rec *domain.TransactionRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO transactions (
			id, external_ref, account_id, kind, amount, currency, fees, net_amount,
			status, balance_before, balance_after, related_transaction_id, metadata, created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.ExternalRef, rec.AccountID, rec.Kind, rec.Amount, rec.Currency,
		rec.Fees, rec.NetAmount, rec.Status, rec.BalanceBefore, rec.BalanceAfter,
		rec.RelatedTransactionID, metadata, rec.CreatedAt, rec.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

// GetAccount retrieves an account without locking it.
func (r *PostgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, r.db, id, false)
}

// GetTransaction retrieves a journal record without locking it.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	return getTransaction(ctx, r.db, id, false)
}

// FindTransactionByExternalRef returns the most recent record carrying the
// external reference.
func (r *PostgresRepository) FindTransactionByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE external_ref = $1 ORDER BY created_at DESC LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, ref))
}

// InsertIntake appends a Pending record, relying on the partial unique index
// to reject a live duplicate external reference under concurrency.
func (r *PostgresRepository) InsertIntake(ctx context.Context, rec *domain.TransactionRecord) error {
	return insertTransaction(ctx, r.db, rec)
}

// ListTransactionsByAccount returns the account's journal entries, newest first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// SumApprovedAmountSince aggregates approved same-kind amounts in the window.
func (r *PostgresRepository) SumApprovedAmountSince(ctx context.Context, accountID uuid.UUID, kind domain.Kind, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND kind = $2 AND status = $3 AND created_at >= $4`,
		accountID, kind, domain.StatusApproved, since,
	).Scan(&total)
	return total, err
}

// CountRecentWithdrawals counts withdrawal intents created in the window.
func (r *PostgresRepository) CountRecentWithdrawals(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = $1 AND kind = $2 AND created_at >= $3`,
		accountID, domain.KindWithdrawal, since,
	).Scan(&count)
	return count, err
}

func getPlan(ctx context.Context, q querier, id uuid.UUID) (*domain.Plan, error) {
	var plan domain.Plan
	err := q.QueryRow(ctx,
		`SELECT id, name, price, minimum_deposit FROM plans WHERE id = $1`, id,
	).Scan(&plan.ID, &plan.Name, &plan.Price, &plan.MinimumDeposit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// GetPlan retrieves an investment plan.
func (r *PostgresRepository) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return getPlan(ctx, r.db, id)
}
