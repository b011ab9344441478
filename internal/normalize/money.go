package normalize

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money is kept as int64 cents in the database and as decimal.Decimal in Go.

// DollarsToCents converts a float amount (as read from Parquet) to int64 cents.
// Uses math.Round to avoid truncation bias.
func DollarsToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// OptCents converts a nullable float amount to nullable cents.
func OptCents(v *float64) *int64 {
	if v == nil {
		return nil
	}
	c := DollarsToCents(*v)
	return &c
}

// CentsToDecimal turns stored cents into a decimal amount.
func CentsToDecimal(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// DecimalToCents rounds d to cents.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FloatToDecimal converts a float amount to a decimal rounded to cents.
func FloatToDecimal(v float64) decimal.Decimal {
	return CentsToDecimal(DollarsToCents(v))
}
