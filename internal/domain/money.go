package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyExponent returns the number of minor-unit digits for currency.
// Unknown codes default to 2.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a major-unit decimal into an integer amount of minor units.
// Amounts with more precision than the currency allows are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp := CurrencyExponent(currency)
	scaled := amount.Shift(exp)

	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places for %s", ErrInvalidAmount, amount.String(), exp, currency)
	}

	if scaled.GreaterThan(decimal.NewFromInt(MaxAmount)) {
		return 0, fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxAmount)
	}

	return scaled.IntPart(), nil
}

// FormatMinorUnits renders minor units as a fixed-point major-unit string, e.g. 1050 USD -> "10.50".
func FormatMinorUnits(amount int64, currency string) string {
	exp := CurrencyExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}
