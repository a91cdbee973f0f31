package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

func seedPlan(repo *fakeRepo, name string, price, minimumDeposit int64) *domain.Plan {
	plan := &domain.Plan{
		ID:             uuid.New(),
		Name:           name,
		Price:          price,
		MinimumDeposit: minimumDeposit,
	}
	repo.plans[plan.ID] = plan
	return plan
}

func TestSwitchPlanUpgradeChargesDifference(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	basic := seedPlan(repo, "basic", 10_000, 0)
	premium := seedPlan(repo, "premium", 50_000, 10_000)

	acct := seedAccount(repo, 100_000, true)
	acct.PlanID = &basic.ID

	result, err := svc.SwitchPlan(context.Background(), acct.ID, premium.ID)
	if err != nil {
		t.Fatalf("SwitchPlan returned error: %v", err)
	}
	if result.Cost != 40_000 {
		t.Fatalf("expected cost 40000, got %d", result.Cost)
	}
	if result.NewBalance != 60_000 {
		t.Fatalf("expected new balance 60000, got %d", result.NewBalance)
	}
	if repo.accounts[acct.ID].PlanID == nil || *repo.accounts[acct.ID].PlanID != premium.ID {
		t.Error("account must be reassigned to the target plan")
	}

	if result.TransactionID == nil {
		t.Fatal("a paid switch must journal an investment record")
	}
	rec := repo.transactions[*result.TransactionID]
	if rec.Kind != domain.KindInvestment || rec.Status != domain.StatusApproved {
		t.Errorf("expected approved investment record, got %s/%s", rec.Kind, rec.Status)
	}
	if *rec.BalanceBefore != 100_000 || *rec.BalanceAfter != 60_000 {
		t.Errorf("unexpected snapshots: %d -> %d", *rec.BalanceBefore, *rec.BalanceAfter)
	}

	templates := notifier.templates()
	if len(templates) != 1 || templates[0] != TemplatePlanSwitched {
		t.Errorf("expected one plan-switched notification, got %v", templates)
	}
}

func TestSwitchPlanDowngradeIsFree(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	premium := seedPlan(repo, "premium", 50_000, 10_000)
	basic := seedPlan(repo, "basic", 10_000, 0)

	acct := seedAccount(repo, 5_000, true)
	acct.PlanID = &premium.ID

	result, err := svc.SwitchPlan(context.Background(), acct.ID, basic.ID)
	if err != nil {
		t.Fatalf("SwitchPlan returned error: %v", err)
	}
	if result.Cost != 0 {
		t.Fatalf("downgrade must cost nothing, got %d", result.Cost)
	}
	if result.TransactionID != nil {
		t.Error("free switches must not journal a record")
	}
	if repo.accounts[acct.ID].Balance != 5_000 {
		t.Errorf("downgrade must never refund, balance %d", repo.accounts[acct.ID].Balance)
	}
	if *repo.accounts[acct.ID].PlanID != basic.ID {
		t.Error("account must still be reassigned")
	}
}

func TestSwitchPlanFirstAssignmentChargesFullPrice(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	basic := seedPlan(repo, "basic", 10_000, 5_000)
	acct := seedAccount(repo, 20_000, true)

	result, err := svc.SwitchPlan(context.Background(), acct.ID, basic.ID)
	if err != nil {
		t.Fatalf("SwitchPlan returned error: %v", err)
	}
	if result.Cost != 10_000 {
		t.Fatalf("expected full price 10000, got %d", result.Cost)
	}
}

func TestSwitchPlanBelowMinimumDeposit(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	basic := seedPlan(repo, "basic", 45_000, 0)
	premium := seedPlan(repo, "premium", 50_000, 10_000)

	acct := seedAccount(repo, 100_000, true)
	acct.PlanID = &basic.ID

	// Cost 5000 is below premium's 10000 minimum.
	_, err := svc.SwitchPlan(context.Background(), acct.ID, premium.ID)
	if !errors.Is(err, ErrBelowMinimumDeposit) {
		t.Fatalf("expected ErrBelowMinimumDeposit, got %v", err)
	}
	if *repo.accounts[acct.ID].PlanID != basic.ID {
		t.Error("refused switch must not reassign the plan")
	}
	if repo.accounts[acct.ID].Balance != 100_000 {
		t.Error("refused switch must not touch the balance")
	}
}

func TestSwitchPlanInsufficientBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	premium := seedPlan(repo, "premium", 50_000, 10_000)
	acct := seedAccount(repo, 1_000, true)

	_, err := svc.SwitchPlan(context.Background(), acct.ID, premium.ID)
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if repo.accounts[acct.ID].PlanID != nil {
		t.Error("failed switch must not assign a plan")
	}
	if len(repo.transactions) != 0 {
		t.Error("failed switch must not leave journal records")
	}
}

func TestSwitchPlanSamePlanRefused(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	basic := seedPlan(repo, "basic", 10_000, 0)
	acct := seedAccount(repo, 100_000, true)
	acct.PlanID = &basic.ID

	if _, err := svc.SwitchPlan(context.Background(), acct.ID, basic.ID); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestSwitchPlanUnknownPlan(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})
	acct := seedAccount(repo, 100_000, true)

	if _, err := svc.SwitchPlan(context.Background(), acct.ID, uuid.New()); !errors.Is(err, store.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}
