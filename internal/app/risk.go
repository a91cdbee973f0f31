/**
 * @description
 * Heuristic risk scoring for withdrawals. The score is a weighted sum of
 * observable account facts. A high score flags the record for mandatory
 * manual review and alerts the admin channel, but never blocks intake;
 * the record still enters the journal as Pending.
 */

package app

import (
	"context"
	"fmt"

	"github.com/trustvest/settlement-service/internal/domain"
)

const (
	riskWeightBalanceFraction    = 30 // withdrawing more than 80% of the balance
	riskWeightLargeAmount        = 20
	riskWeightNewAccount         = 25
	riskWeightKYCIncomplete      = 15
	riskWeightFrequentWithdrawal = 20

	riskMediumThreshold = 25
	riskHighThreshold   = 50
)

// assessWithdrawalRisk scores a withdrawal intent against the account's
// current state and recent activity.
func (s *Service) assessWithdrawalRisk(ctx context.Context, acct *domain.Account, amount int64) (domain.RiskAssessment, error) {
	var (
		score   int
		factors []string
	)

	if acct.Balance > 0 && amount*100 > acct.Balance*80 {
		score += riskWeightBalanceFraction
		factors = append(factors, "withdraws_over_80pct_of_balance")
	}
	if s.policies.Risk.LargeAmountThreshold > 0 && amount > s.policies.Risk.LargeAmountThreshold {
		score += riskWeightLargeAmount
		factors = append(factors, "large_amount")
	}
	if s.policies.Risk.NewAccountAge > 0 && s.now().Sub(acct.CreatedAt) < s.policies.Risk.NewAccountAge {
		score += riskWeightNewAccount
		factors = append(factors, "new_account")
	}
	if !acct.KYCVerified {
		score += riskWeightKYCIncomplete
		factors = append(factors, "kyc_incomplete")
	}

	window := s.policies.Risk.RecentWindow
	if window > 0 {
		recent, err := s.repo.CountRecentWithdrawals(ctx, acct.ID, s.now().UTC().Add(-window))
		if err != nil {
			return domain.RiskAssessment{}, fmt.Errorf("recent withdrawal lookup: %w", err)
		}
		if recent > s.policies.Risk.RecentMax {
			score += riskWeightFrequentWithdrawal
			factors = append(factors, "frequent_withdrawals")
		}
	}

	return domain.RiskAssessment{
		Score:   score,
		Level:   riskLevel(score),
		Factors: factors,
	}, nil
}

func riskLevel(score int) domain.RiskLevel {
	switch {
	case score >= riskHighThreshold:
		return domain.RiskHigh
	case score >= riskMediumThreshold:
		return domain.RiskMedium
	}
	return domain.RiskLow
}
