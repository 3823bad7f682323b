package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	model "github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

var hundred = decimal.NewFromInt(100)

// Split is a total divided between the creator and the other participant.
// Self + Other always equals the total exactly.
type Split struct {
	Self  decimal.Decimal
	Other decimal.Decimal
}

// SplitAmount divides total according to share. A nil share keeps the whole
// amount for the creator.
func SplitAmount(total decimal.Decimal, share *intake.ShareSpec) (Split, error) {
	total = total.Round(2)
	if total.IsNegative() {
		return Split{}, fmt.Errorf("negative amount %s", total)
	}
	if share == nil {
		return Split{Self: total, Other: decimal.Zero}, nil
	}

	var self decimal.Decimal
	switch share.Division {
	case model.DivisionHalf:
		self = total.Div(decimal.NewFromInt(2)).Round(2)
	case model.DivisionPercentage:
		if share.Value == nil || share.Value.IsNegative() || share.Value.GreaterThan(hundred) {
			return Split{}, intake.NewError(intake.ErrExtractionFailed, intake.ReasonInvalidShare, fmt.Errorf("percentage must be between 0 and 100"))
		}
		self = total.Mul(*share.Value).Div(hundred).Round(2)
	case model.DivisionFixed:
		if share.Value == nil || share.Value.IsNegative() || share.Value.GreaterThan(total) {
			return Split{}, intake.NewError(intake.ErrExtractionFailed, intake.ReasonInvalidShare, fmt.Errorf("fixed share must be between 0 and %s", total.StringFixed(2)))
		}
		self = share.Value.Round(2)
	default:
		return Split{}, fmt.Errorf("unknown division %q", share.Division)
	}

	return Split{Self: self, Other: total.Sub(self)}, nil
}

// InstallmentAmounts divides amount into n parts of two decimals; the last
// part absorbs the rounding remainder.
func InstallmentAmounts(amount decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		n = 1
	}
	amount = amount.Round(2)
	per := amount.Div(decimal.NewFromInt(int64(n))).RoundDown(2)

	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = per
	}
	parts[n-1] = amount.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
	return parts
}

// AddMonths moves t forward by months, clamping the day to the end of the
// target month (Jan 31 + 1 month is Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()

	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
