package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validation errors
var (
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrAmountTooLarge   = errors.New("amount exceeds maximum allowed")
	ErrMetadataTooLarge = errors.New("metadata size exceeds limit")
	ErrInvalidMetadata  = errors.New("invalid metadata")
	ErrInvalidStatus    = errors.New("invalid status")
)

// Validation constants
const (
	MaxMetadataSize = 10240 // 10KB
	// MaxAmount is the per-operation ceiling in minor units.
	MaxAmount int64 = 10_000_000_000
)

// Valid currency codes (ISO 4217) with their minor-unit exponent.
var currencyExponents = map[string]int32{
	"USD": 2, "EUR": 2, "GBP": 2, "JPY": 0,
	"CNY": 2, "AUD": 2, "CAD": 2, "CHF": 2,
	"SEK": 2, "NZD": 2, "KRW": 0, "SGD": 2,
	"NOK": 2, "MXN": 2, "INR": 2, "BRL": 2,
	"ZAR": 2, "RUB": 2, "TRY": 2, "HKD": 2,
	"MYR": 2, "IDR": 2, "THB": 2, "PHP": 2,
	"BHD": 3, "KWD": 3,
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if _, ok := currencyExponents[currency]; !ok {
		return "", fmt.Errorf("%w: %q is not a supported ISO 4217 currency code", ErrInvalidCurrency, currency)
	}

	return currency, nil
}

// ValidateCurrency validates currency code
func ValidateCurrency(currency string) error {
	_, err := NormalizeCurrency(currency)
	return err
}

// ValidateAmount validates an operation amount in minor units.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if amount > MaxAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxAmount)
	}

	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if len(raw) > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, len(raw), MaxMetadataSize)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
