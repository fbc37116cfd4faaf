package training

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

var errEmptyValue = errors.New("empty value")

// ParseBrazilianAmount parses "R$ 1.234,56" style amounts. Strings without a
// comma are read as plain decimals, so "R$ 1234.56" also works.
func ParseBrazilianAmount(s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(s, "R$", "")
	clean = strings.ReplaceAll(clean, `"`, "")
	clean = strings.Join(strings.Fields(clean), "")
	if clean == "" {
		return decimal.Zero, errEmptyValue
	}
	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseAmount parses a plain decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return decimal.Zero, errEmptyValue
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

var isoDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// ParseISODate accepts ISO dates with an optional time part.
func ParseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseBrazilianDate parses DD/MM/YYYY.
func ParseBrazilianDate(s string) (time.Time, error) {
	t, err := time.Parse("02/01/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func typeOrSign(raw string, amount decimal.Decimal) model.TransactionType {
	if typ, ok := model.ParseTransactionType(raw); ok {
		return typ
	}
	return model.TypeForAmount(amount)
}
