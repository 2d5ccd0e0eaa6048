package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// slicePrecision is the number of decimal places a slice amount keeps. The
// quotient is truncated so a slice never rounds above its even share.
const slicePrecision = 18

// NextSliceAmount splits what remains evenly over the intervals left, never
// returning more than remaining. Fewer than one interval counts as one and a
// negative remaining amount counts as zero.
func NextSliceAmount(remaining decimal.Decimal, intervals int) decimal.Decimal {
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	if intervals < 1 {
		intervals = 1
	}
	share, _ := remaining.QuoRem(decimal.NewFromInt(int64(intervals)), slicePrecision)
	return decimal.Min(remaining, share)
}

// RemainingIntervals is ceil((end-now)/interval), at least 1.
func RemainingIntervals(now, end time.Time, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	left := end.Sub(now)
	if left <= 0 {
		return 1
	}
	n := int(left / interval)
	if left%interval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
