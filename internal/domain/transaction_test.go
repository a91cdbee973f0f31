package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestSignedDeltaCreditAndDebitKinds(t *testing.T) {
	cases := []struct {
		kind Kind
		want int64
	}{
		{KindDeposit, 500},
		{KindBonus, 500},
		{KindProfit, 500},
		{KindWithdrawal, -500},
		{KindPenalty, -500},
		{KindInvestment, -500},
	}
	for _, tc := range cases {
		got, err := SignedDelta(tc.kind, 500)
		if err != nil {
			t.Errorf("SignedDelta(%s) returned error: %v", tc.kind, err)
			continue
		}
		if got != tc.want {
			t.Errorf("SignedDelta(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestSignedDeltaRejectsUnknownKind(t *testing.T) {
	if _, err := SignedDelta(Kind("chargeback"), 500); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusApproved, StatusRejected, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []Status{StatusPending, StatusProcessing}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestIsCascade(t *testing.T) {
	rec := &TransactionRecord{ID: uuid.New()}
	if rec.IsCascade() {
		t.Error("record without a back-reference is not a cascade")
	}
	trigger := uuid.New()
	rec.RelatedTransactionID = &trigger
	if !rec.IsCascade() {
		t.Error("record with a back-reference is a cascade")
	}
}
