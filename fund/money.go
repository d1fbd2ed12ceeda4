package fund

import "github.com/shopspring/decimal"

// SplitEven computes the per-person charge for an equal split using
// standard rounding to the smallest currency unit. The sum of charges
// may differ from total by up to participants-1 units; the drift is
// accepted and not redistributed.
func SplitEven(total int64, participants int) int64 {
	if participants <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).
		DivRound(decimal.NewFromInt(int64(participants)), 0).
		IntPart()
}
