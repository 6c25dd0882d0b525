package domain

import (
	"github.com/shopspring/decimal"
)

// LateFeeKind selects how late fees are computed
type LateFeeKind string

const (
	// LateFeeFixedDaily charges a flat amount per late day for the whole return
	LateFeeFixedDaily LateFeeKind = "FIXED_DAILY"
	// LateFeePercentage charges a percentage of each line's daily rental rate per unit and late day
	LateFeePercentage LateFeeKind = "PERCENTAGE"
)

// LateFeePolicy parameterises late fee calculation
type LateFeePolicy struct {
	Kind       LateFeeKind
	DailyRate  Money
	Percentage Percentage
}

// Validate checks the policy parameters
func (p LateFeePolicy) Validate() error {
	switch p.Kind {
	case LateFeeFixedDaily:
		if p.DailyRate.IsNegative() {
			return NewValidationError("dailyLateFeeRate", "cannot be negative")
		}
	case LateFeePercentage:
		if p.Percentage.Decimal().IsNegative() {
			return NewValidationError("lateFeePercentage", "cannot be negative")
		}
	default:
		return NewValidationError("lateFeeKind", "must be FIXED_DAILY or PERCENTAGE")
	}
	return nil
}

// LateFeeLine is the per-line input for late fee calculation
type LateFeeLine struct {
	ReturnLineID    string
	Quantity        int
	DailyRentalRate Money
}

// LateFeeResult carries the total fee and its per-line split, in input order
type LateFeeResult struct {
	DaysLate int
	Total    Money
	PerLine  []Money
}

// CalculateLateFees computes late fees for daysLate days. Not late yields zero everywhere.
// With the fixed policy the total is split in proportion to quantity and the
// rounding remainder lands on the last line.
func CalculateLateFees(daysLate int, policy LateFeePolicy, lines []LateFeeLine) LateFeeResult {
	result := LateFeeResult{DaysLate: daysLate, Total: ZeroMoney(), PerLine: make([]Money, len(lines))}
	for i := range result.PerLine {
		result.PerLine[i] = ZeroMoney()
	}
	if daysLate <= 0 {
		result.DaysLate = 0
		return result
	}

	switch policy.Kind {
	case LateFeePercentage:
		factor := policy.Percentage.Decimal().Div(hundred).Mul(decimal.NewFromInt(int64(daysLate)))
		for i, l := range lines {
			fee := NewMoney(l.DailyRentalRate.Decimal().Mul(factor).Mul(decimal.NewFromInt(int64(l.Quantity))))
			result.PerLine[i] = fee
			result.Total = result.Total.Add(fee)
		}
	default:
		result.Total = policy.DailyRate.MulInt(daysLate)
		weights := make([]int, len(lines))
		for i, l := range lines {
			weights[i] = l.Quantity
		}
		result.PerLine = Distribute(result.Total, weights)
	}
	return result
}

// Distribute splits total across weights, rounding each share and putting the
// remainder on the last entry. Zero total weight splits evenly.
func Distribute(total Money, weights []int) []Money {
	shares := make([]Money, len(weights))
	if len(weights) == 0 {
		return shares
	}
	sum := 0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		weights = make([]int, len(weights))
		for i := range weights {
			weights[i] = 1
		}
		sum = len(weights)
	}

	allocated := ZeroMoney()
	last := len(weights) - 1
	for i := 0; i < last; i++ {
		share := NewMoney(total.Decimal().Mul(decimal.NewFromInt(int64(weights[i]))).Div(decimal.NewFromInt(int64(sum))))
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[last] = total.Sub(allocated)
	return shares
}

// DepositSplit is the outcome of settling a deposit against fees
type DepositSplit struct {
	OriginalDeposit Money `json:"originalDeposit"`
	TotalFees       Money `json:"totalFees"`
	ReleaseAmount   Money `json:"releaseAmount"`
	WithheldAmount  Money `json:"withheldAmount"`
}

// CalculateDepositSplit returns release = max(0, deposit - fees) and withheld = deposit - release
func CalculateDepositSplit(deposit, fees Money) DepositSplit {
	release := deposit.Sub(fees).NonNegative()
	return DepositSplit{
		OriginalDeposit: deposit,
		TotalFees:       fees,
		ReleaseAmount:   release,
		WithheldAmount:  deposit.Sub(release),
	}
}
