package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Currency is an ISO 4217 code supported by the ledger.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

var allCurrencies = []Currency{EUR, USD, GBP, JPY}

// AllCurrencies returns every supported currency in declaration order.
func AllCurrencies() []Currency {
	out := make([]Currency, len(allCurrencies))
	copy(out, allCurrencies)
	return out
}

// ParseCurrency resolves a case-insensitive code to a supported Currency.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	for _, known := range allCurrencies {
		if c == known {
			return true
		}
	}
	return false
}

func (c Currency) Code() string {
	return string(c)
}

func (c Currency) String() string {
	return string(c)
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseCurrency(code)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
