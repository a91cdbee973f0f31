/**
 * @description
 * Deterministic fee calculator. A pure function of (amount, method, urgent):
 * no clocks, no configuration reads, no side effects, so the breakdown
 * stored in a record's metadata at intake can always be reproduced for
 * audit. Percentages are integer basis points over cent amounts, which
 * keeps the arithmetic exact.
 */

package app

import "github.com/trustvest/settlement-service/internal/domain"

type feeSchedule struct {
	baseFee    int64 // cents
	percentBps int64 // basis points of the amount
}

var feeSchedules = map[string]feeSchedule{
	"mobile_banking": {baseFee: 200, percentBps: 150},
	"bank_transfer":  {baseFee: 500, percentBps: 100},
	"card":           {baseFee: 300, percentBps: 250},
	"crypto":         {baseFee: 100, percentBps: 200},
}

// defaultFeeSchedule applies to methods without an explicit entry.
var defaultFeeSchedule = feeSchedule{baseFee: 250, percentBps: 200}

// urgencyFeeBps is charged on top when the caller requests urgent processing.
const urgencyFeeBps = 200

// CalculateFees computes the fee breakdown for an intake.
func CalculateFees(amount int64, method string, urgent bool) domain.FeeBreakdown {
	schedule, ok := feeSchedules[method]
	if !ok {
		schedule = defaultFeeSchedule
	}

	percentage := amount * schedule.percentBps / 10000
	var urgency int64
	if urgent {
		urgency = amount * urgencyFeeBps / 10000
	}
	total := schedule.baseFee + percentage + urgency

	return domain.FeeBreakdown{
		BaseFee:       schedule.baseFee,
		PercentageFee: percentage,
		UrgencyFee:    urgency,
		TotalFee:      total,
		NetAmount:     amount - total,
	}
}
