package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trustvest/settlement-service/internal/domain"
)

func TestCancelWithdrawalWithinWindow(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, notifier)

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindWithdrawal, 4_000, 0)

	result, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID)
	if err != nil {
		t.Fatalf("CancelWithdrawal returned error: %v", err)
	}
	if result.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", result.Status)
	}

	settled := repo.transactions[rec.ID]
	if settled.Metadata["rejection_reason"] != "self-cancelled" {
		t.Errorf("expected self-cancelled reason, got %v", settled.Metadata)
	}
	if repo.accounts[acct.ID].Balance != 10_000 {
		t.Error("cancellation must not touch the balance")
	}
	if len(repo.audits) != 1 || repo.audits[0].Action != "transaction.cancel" {
		t.Errorf("expected a cancel audit entry, got %+v", repo.audits)
	}
}

func TestCancelWithdrawalWindowExpired(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindWithdrawal, 4_000, 0)
	rec.CreatedAt = svc.now().Add(-61 * time.Minute)

	_, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID)
	if !errors.Is(err, ErrCancellationClosed) {
		t.Fatalf("expected ErrCancellationClosed, got %v", err)
	}
	if repo.transactions[rec.ID].Status != domain.StatusPending {
		t.Error("record must stay pending after a refused cancel")
	}
}

func TestCancelWithdrawalExactlyAtWindowEdge(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindWithdrawal, 4_000, 0)
	rec.CreatedAt = svc.now().Add(-time.Hour)

	if _, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID); err != nil {
		t.Fatalf("cancel exactly at the window edge must pass, got %v", err)
	}
}

func TestCancelWithdrawalRefusedOnceProcessing(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindWithdrawal, 4_000, 0)
	rec.Status = domain.StatusProcessing

	_, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID)
	if !errors.Is(err, ErrCancellationClosed) {
		t.Fatalf("expected ErrCancellationClosed once processing, got %v", err)
	}
}

func TestCancelWithdrawalNotOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	owner := seedAccount(repo, 10_000, true)
	other := seedAccount(repo, 0, true)
	rec := seedPending(repo, owner.ID, domain.KindWithdrawal, 4_000, 0)

	_, err := svc.CancelWithdrawal(context.Background(), other.ID, rec.ID)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestCancelWithdrawalWrongKind(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindDeposit, 4_000, 0)

	_, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID)
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for a deposit, got %v", err)
	}
}

func TestCancelWithdrawalTerminalRecord(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingNotifier{})

	acct := seedAccount(repo, 10_000, true)
	rec := seedPending(repo, acct.ID, domain.KindWithdrawal, 4_000, 0)
	rec.Status = domain.StatusRejected

	_, err := svc.CancelWithdrawal(context.Background(), acct.ID, rec.ID)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}
