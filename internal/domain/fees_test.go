package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribute(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		weights  []int
		expected []string
	}{
		{"remainder on last", "10.00", []int{1, 1, 1}, []string{"3.33", "3.33", "3.34"}},
		{"by quantity", "30.00", []int{1, 2}, []string{"10.00", "20.00"}},
		{"zero weights split evenly", "1.00", []int{0, 0}, []string{"0.50", "0.50"}},
		{"single line", "7.77", []int{4}, []string{"7.77"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := Distribute(MustMoney(tt.total), tt.weights)
			got := make([]string, len(shares))
			for i, s := range shares {
				got[i] = s.String()
			}
			assert.Equal(t, tt.expected, got)
			assert.True(t, SumMoney(shares...).Equal(MustMoney(tt.total)))
		})
	}
	assert.Empty(t, Distribute(MustMoney("5"), nil))
}

func TestCalculateLateFees(t *testing.T) {
	lines := []LateFeeLine{
		{ReturnLineID: "a", Quantity: 2, DailyRentalRate: MustMoney("20")},
		{ReturnLineID: "b", Quantity: 1, DailyRentalRate: MustMoney("15")},
	}

	tests := []struct {
		name     string
		daysLate int
		policy   LateFeePolicy
		total    string
		perLine  []string
	}{
		{
			name:     "on time is free",
			daysLate: 0,
			policy:   LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("10")},
			total:    "0.00",
			perLine:  []string{"0.00", "0.00"},
		},
		{
			name:     "early is free",
			daysLate: -2,
			policy:   LateFeePolicy{Kind: LateFeePercentage, Percentage: MustPercentage("10")},
			total:    "0.00",
			perLine:  []string{"0.00", "0.00"},
		},
		{
			name:     "fixed daily split by quantity",
			daysLate: 1,
			policy:   LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("10")},
			total:    "10.00",
			perLine:  []string{"6.67", "3.33"},
		},
		{
			name:     "percentage of daily rate",
			daysLate: 3,
			policy:   LateFeePolicy{Kind: LateFeePercentage, Percentage: MustPercentage("10")},
			total:    "16.50",
			perLine:  []string{"12.00", "4.50"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateLateFees(tt.daysLate, tt.policy, lines)
			assert.Equal(t, tt.total, result.Total.String())
			require.Len(t, result.PerLine, len(lines))
			for i, want := range tt.perLine {
				assert.Equal(t, want, result.PerLine[i].String())
			}
			assert.GreaterOrEqual(t, result.DaysLate, 0)
		})
	}
}

func TestLateFeesGrowWithDaysLate(t *testing.T) {
	policy := LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("7.50")}
	lines := []LateFeeLine{{ReturnLineID: "a", Quantity: 3}}

	previous := ZeroMoney()
	for days := 0; days <= 30; days++ {
		fee := CalculateLateFees(days, policy, lines).Total
		assert.True(t, fee.GreaterThanOrEqual(previous), "day %d", days)
		previous = fee
	}
}

func TestLateFeePolicyValidate(t *testing.T) {
	assert.NoError(t, LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("5")}.Validate())
	assert.ErrorIs(t, LateFeePolicy{Kind: LateFeeFixedDaily, DailyRate: MustMoney("-5")}.Validate(), ErrValidation)
	assert.ErrorIs(t, LateFeePolicy{Kind: "WEEKLY"}.Validate(), ErrValidation)
}

func TestCalculateDepositSplit(t *testing.T) {
	tests := []struct {
		name     string
		deposit  string
		fees     string
		release  string
		withheld string
	}{
		{"fees below deposit", "100", "35", "65.00", "35.00"},
		{"no fees", "100", "0", "100.00", "0.00"},
		{"fees above deposit", "100", "140", "0.00", "100.00"},
		{"no deposit", "0", "20", "0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split := CalculateDepositSplit(MustMoney(tt.deposit), MustMoney(tt.fees))
			assert.Equal(t, tt.release, split.ReleaseAmount.String())
			assert.Equal(t, tt.withheld, split.WithheldAmount.String())
			assert.True(t, split.ReleaseAmount.Add(split.WithheldAmount).Equal(split.OriginalDeposit))
		})
	}
}
