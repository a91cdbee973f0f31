package config

import (
	"testing"
	"time"

	"github.com/trustvest/settlement-service/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("default server port: got %q, want 8080", cfg.ServerPort)
	}
	if cfg.RedisRateLimitPrefix != "settlement:rate_limit" {
		t.Errorf("default redis prefix: got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.WithdrawalMinCents != 500 {
		t.Errorf("default withdrawal minimum: got %d, want 500", cfg.WithdrawalMinCents)
	}
	if cfg.ReferralPercentBps != 1_000 {
		t.Errorf("default referral percent: got %d, want 1000", cfg.ReferralPercentBps)
	}
	if cfg.ReferralCapCents != 10_000 {
		t.Errorf("default referral cap: got %d, want 10000", cfg.ReferralCapCents)
	}
	if cfg.RiskNewAccountDays != 30 {
		t.Errorf("default new account age: got %d, want 30", cfg.RiskNewAccountDays)
	}
	if cfg.RiskRecentMax != 2 {
		t.Errorf("default recent withdrawal allowance: got %d, want 2", cfg.RiskRecentMax)
	}
	if cfg.CancelWindowMinutes != 60 {
		t.Errorf("default cancel window: got %d, want 60", cfg.CancelWindowMinutes)
	}
}

func TestPoliciesMapping(t *testing.T) {
	cfg := Config{
		DepositMinCents:              100,
		DepositMaxCents:              1_000,
		DepositDailyCents:            5_000,
		DepositMonthlyCents:          50_000,
		WithdrawalMinCents:           200,
		WithdrawalMaxCents:           2_000,
		WithdrawalDailyCents:         8_000,
		WithdrawalMonthlyCents:       80_000,
		RiskLargeAmountCents:         10_000,
		RiskNewAccountDays:           7,
		RiskRecentWindowHours:        24,
		RiskRecentMax:                3,
		ReferralPercentBps:           500,
		ReferralCapCents:             50_000,
		CancelWindowMinutes:          90,
		WithdrawalRateLimitPerMinute: 5,
	}

	policies := cfg.Policies()

	deposit, ok := policies.Limits[domain.KindDeposit]
	if !ok {
		t.Fatal("deposit limits missing")
	}
	if deposit.MinPerTx != 100 || deposit.MaxPerTx != 1_000 || deposit.DailyMax != 5_000 || deposit.MonthlyMax != 50_000 {
		t.Errorf("deposit limits mismatched: %+v", deposit)
	}
	withdrawal := policies.Limits[domain.KindWithdrawal]
	if withdrawal.MinPerTx != 200 || withdrawal.DailyMax != 8_000 {
		t.Errorf("withdrawal limits mismatched: %+v", withdrawal)
	}
	if policies.Risk.NewAccountAge != 7*24*time.Hour {
		t.Errorf("new account age: got %s", policies.Risk.NewAccountAge)
	}
	if policies.Risk.RecentWindow != 24*time.Hour {
		t.Errorf("recent window: got %s", policies.Risk.RecentWindow)
	}
	if policies.CancelWindow != 90*time.Minute {
		t.Errorf("cancel window: got %s", policies.CancelWindow)
	}
	if policies.Referral.PercentBps != 500 || policies.Referral.CapCents != 50_000 {
		t.Errorf("referral policy mismatched: %+v", policies.Referral)
	}
	if policies.WithdrawalRatePerMin != 5 {
		t.Errorf("withdrawal rate limit: got %d", policies.WithdrawalRatePerMin)
	}
}
