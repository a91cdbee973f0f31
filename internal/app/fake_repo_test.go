package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

// fakeRepo is an in-memory store.Repository. Atomically serializes units on
// a mutex and restores the pre-unit state when fn fails, which mirrors the
// all-or-nothing commit the engine relies on.
type fakeRepo struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*domain.Account
	transactions map[uuid.UUID]*domain.TransactionRecord
	referrals    map[uuid.UUID]*domain.Referral
	rewards      map[uuid.UUID]*domain.Reward
	plans        map[uuid.UUID]*domain.Plan
	audits       []*domain.AuditEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:     map[uuid.UUID]*domain.Account{},
		transactions: map[uuid.UUID]*domain.TransactionRecord{},
		referrals:    map[uuid.UUID]*domain.Referral{},
		rewards:      map[uuid.UUID]*domain.Reward{},
		plans:        map[uuid.UUID]*domain.Plan{},
	}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func cloneRecord(r *domain.TransactionRecord) *domain.TransactionRecord {
	c := *r
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneReferral(r *domain.Referral) *domain.Referral {
	c := *r
	return &c
}

func cloneReward(r *domain.Reward) *domain.Reward {
	c := *r
	return &c
}

func (f *fakeRepo) Atomically(ctx context.Context, fn func(ops store.Ops) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	accountsSnap := make(map[uuid.UUID]*domain.Account, len(f.accounts))
	for id, a := range f.accounts {
		accountsSnap[id] = cloneAccount(a)
	}
	txSnap := make(map[uuid.UUID]*domain.TransactionRecord, len(f.transactions))
	for id, r := range f.transactions {
		txSnap[id] = cloneRecord(r)
	}
	refSnap := make(map[uuid.UUID]*domain.Referral, len(f.referrals))
	for id, r := range f.referrals {
		refSnap[id] = cloneReferral(r)
	}
	rewardSnap := make(map[uuid.UUID]*domain.Reward, len(f.rewards))
	for id, r := range f.rewards {
		rewardSnap[id] = cloneReward(r)
	}
	auditLen := len(f.audits)

	if err := fn((*fakeOps)(f)); err != nil {
		f.accounts = accountsSnap
		f.transactions = txSnap
		f.referrals = refSnap
		f.rewards = rewardSnap
		f.audits = f.audits[:auditLen]
		return err
	}
	return nil
}

func (f *fakeRepo) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (f *fakeRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.transactions[id]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	return cloneRecord(r), nil
}

func (f *fakeRepo) FindTransactionByExternalRef(ctx context.Context, ref string) (*domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.TransactionRecord
	for _, r := range f.transactions {
		if r.ExternalRef != ref {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, store.ErrTransactionNotFound
	}
	return cloneRecord(latest), nil
}

func (f *fakeRepo) InsertIntake(ctx context.Context, rec *domain.TransactionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.transactions {
		if r.ExternalRef == rec.ExternalRef && r.Status != domain.StatusFailed {
			return store.ErrDuplicateTransaction
		}
	}
	f.transactions[rec.ID] = cloneRecord(rec)
	return nil
}

func (f *fakeRepo) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransactionRecord
	for _, r := range f.transactions {
		if r.AccountID == accountID {
			out = append(out, *cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) SumApprovedAmountSince(ctx context.Context, accountID uuid.UUID, kind domain.Kind, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, r := range f.transactions {
		if r.AccountID == accountID && r.Kind == kind && r.Status == domain.StatusApproved && !r.CreatedAt.Before(since) {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (f *fakeRepo) CountRecentWithdrawals(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.transactions {
		if r.AccountID == accountID && r.Kind == domain.KindWithdrawal && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	c := *p
	return &c, nil
}

// fakeOps runs against the same state while the Atomically mutex is held.
type fakeOps fakeRepo

func (o *fakeOps) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	r, ok := o.transactions[id]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	return cloneRecord(r), nil
}

func (o *fakeOps) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, ok := o.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (o *fakeOps) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	a, ok := o.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	if a.Balance+delta < 0 {
		return 0, store.ErrInsufficientBalance
	}
	a.Balance += delta
	return a.Balance, nil
}

func (o *fakeOps) SettleTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	if _, ok := o.transactions[rec.ID]; !ok {
		return store.ErrTransactionNotFound
	}
	o.transactions[rec.ID] = cloneRecord(rec)
	return nil
}

func (o *fakeOps) InsertTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	o.transactions[rec.ID] = cloneRecord(rec)
	return nil
}

func (o *fakeOps) CountApprovedDeposits(ctx context.Context, accountID uuid.UUID, excluding uuid.UUID) (int, error) {
	count := 0
	for _, r := range o.transactions {
		if r.ID == excluding {
			continue
		}
		if r.AccountID == accountID && r.Kind == domain.KindDeposit && r.Status == domain.StatusApproved {
			count++
		}
	}
	return count, nil
}

func (o *fakeOps) FindPendingReferralByReferred(ctx context.Context, referredAccountID uuid.UUID) (*domain.Referral, error) {
	for _, r := range o.referrals {
		if r.ReferredAccountID == referredAccountID && r.Status == domain.ReferralPending {
			return cloneReferral(r), nil
		}
	}
	return nil, nil
}

func (o *fakeOps) MarkReferralPaid(ctx context.Context, referralID, transactionID uuid.UUID) error {
	r, ok := o.referrals[referralID]
	if !ok {
		return store.ErrTransactionNotFound
	}
	r.Status = domain.ReferralPaid
	r.PaidTransactionID = &transactionID
	return nil
}

func (o *fakeOps) GetRewardForUpdate(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	r, ok := o.rewards[id]
	if !ok {
		return nil, store.ErrRewardNotFound
	}
	return cloneReward(r), nil
}

func (o *fakeOps) MarkRewardClaimed(ctx context.Context, rewardID, transactionID uuid.UUID) error {
	r, ok := o.rewards[rewardID]
	if !ok {
		return store.ErrRewardNotFound
	}
	r.ClaimedTransactionID = &transactionID
	return nil
}

func (o *fakeOps) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	p, ok := o.plans[id]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	c := *p
	return &c, nil
}

func (o *fakeOps) UpdateAccountPlan(ctx context.Context, accountID, planID uuid.UUID) error {
	a, ok := o.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	id := planID
	a.PlanID = &id
	return nil
}

func (o *fakeOps) RecordAudit(ctx context.Context, entry *domain.AuditEntry) {
	o.audits = append(o.audits, entry)
}

// recordingNotifier captures post-commit notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
	err   error
}

type notifierCall struct {
	template  string
	recipient uuid.UUID
	variables map[string]any
}

func (n *recordingNotifier) Notify(ctx context.Context, template string, recipient uuid.UUID, variables map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{template: template, recipient: recipient, variables: variables})
	return n.err
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.template)
	}
	return out
}

// stubRateLimiter returns a fixed count.
type stubRateLimiter struct {
	count int
	err   error
	calls int
}

func (l *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	if l.err != nil {
		return 0, 0, l.err
	}
	return l.count, 30, nil
}

func testPolicies() Policies {
	return Policies{
		Limits: map[domain.Kind]LimitPolicy{
			domain.KindDeposit:    {MinPerTx: 100, MaxPerTx: 10_000_000, DailyMax: 50_000_000, MonthlyMax: 500_000_000},
			domain.KindWithdrawal: {MinPerTx: 500, MaxPerTx: 5_000_000, DailyMax: 10_000_000, MonthlyMax: 100_000_000},
		},
		Risk: RiskPolicy{
			LargeAmountThreshold: 1_000_000,
			NewAccountAge:        30 * 24 * time.Hour,
			RecentWindow:         24 * time.Hour,
			RecentMax:            2,
		},
		Referral:             ReferralPolicy{PercentBps: 1_000, CapCents: 10_000},
		CancelWindow:         time.Hour,
		WithdrawalRatePerMin: 5,
	}
}

func newTestService(repo *fakeRepo, notifier Notifier) *Service {
	svc := NewService(repo, notifier, testPolicies())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedAccount(repo *fakeRepo, balance int64, kycVerified bool) *domain.Account {
	acct := &domain.Account{
		ID:          uuid.New(),
		Balance:     balance,
		Currency:    "USD",
		KYCVerified: kycVerified,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	repo.accounts[acct.ID] = acct
	return acct
}

func seedPending(repo *fakeRepo, accountID uuid.UUID, kind domain.Kind, amount, fees int64) *domain.TransactionRecord {
	rec := &domain.TransactionRecord{
		ID:          uuid.New(),
		ExternalRef: "ref-" + uuid.NewString(),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Currency:    "USD",
		Fees:        fees,
		NetAmount:   amount - fees,
		Status:      domain.StatusPending,
		CreatedAt:   time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC),
	}
	repo.transactions[rec.ID] = rec
	return rec
}
