package provider

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units plus an ISO-4217 currency code
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney normalizes the currency code to upper case.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Equal compares amount and currency exactly.
func (m Money) Equal(o Money) bool {
	return m.Amount == o.Amount && strings.EqualFold(m.Currency, o.Currency)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Major().StringFixed(CurrencyExponent(m.Currency)), m.Currency)
}

// Major returns the amount in major units, e.g. 5000 EGP minor -> 50.00.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Amount, -CurrencyExponent(m.Currency))
}

// MajorString formats the amount in major units with the currency's fixed
// number of decimals.
func (m Money) MajorString() string {
	return m.Major().StringFixed(CurrencyExponent(m.Currency))
}

// ParseMajor converts a gateway's major-unit decimal string into Money.
// Amounts with more precision than the currency allows are rejected.
func ParseMajor(value, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return FromMajor(d, currency)
}

// FromMajor converts a major-unit decimal into Money.
func FromMajor(d decimal.Decimal, currency string) (Money, error) {
	exp := CurrencyExponent(currency)
	minor := d.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("amount %s has more than %d decimals", d.String(), exp)
	}
	return NewMoney(minor.IntPart(), currency), nil
}

// CurrencyExponent returns the number of minor-unit digits for a currency.
func CurrencyExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "ISK", "UGX", "XAF", "XOF":
		return 0
	case "KWD", "BHD", "OMR", "JOD", "TND", "IQD", "LYD":
		return 3
	default:
		return 2
	}
}
