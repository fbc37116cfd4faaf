package testutil

import (
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// LabeledBuilder produces deterministic training rows.
type LabeledBuilder struct {
	rows []model.LabeledTransaction
	seq  int
}

// NewLabeledData starts an empty training set.
func NewLabeledData() *LabeledBuilder {
	return &LabeledBuilder{}
}

// WithCategory adds count rows for category, cycling through descriptions.
// Amounts drift around base so rows are not identical.
func (b *LabeledBuilder) WithCategory(category string, count int, base float64, descriptions ...string) *LabeledBuilder {
	for i := range count {
		b.seq++
		amount := decimal.NewFromFloat(base).Add(decimal.NewFromInt(int64(i % 7)).Div(decimal.NewFromInt(4)))
		if base < 0 {
			amount = decimal.NewFromFloat(base).Sub(decimal.NewFromInt(int64(i % 7)).Div(decimal.NewFromInt(4)))
		}
		b.rows = append(b.rows, model.LabeledTransaction{
			Date:        time.Date(2024, time.Month(1+i%12), 1+(b.seq*7)%28, 0, 0, 0, 0, time.UTC),
			Description: descriptions[i%len(descriptions)],
			Amount:      amount,
			Type:        model.TypeForAmount(amount),
			Category:    category,
		})
	}
	return b
}

// WithRow adds a single row.
func (b *LabeledBuilder) WithRow(description string, amount float64, category string) *LabeledBuilder {
	b.seq++
	value := decimal.NewFromFloat(amount)
	b.rows = append(b.rows, model.LabeledTransaction{
		Date:        time.Date(2024, 6, 1+b.seq%28, 0, 0, 0, 0, time.UTC),
		Description: description,
		Amount:      value,
		Type:        model.TypeForAmount(value),
		Category:    category,
	})
	return b
}

// Build returns a copy of the rows.
func (b *LabeledBuilder) Build() []model.LabeledTransaction {
	out := make([]model.LabeledTransaction, len(b.rows))
	copy(out, b.rows)
	return out
}

// SampleLabeledData is a small, cleanly separable four category set.
func SampleLabeledData() *LabeledBuilder {
	return NewLabeledData().
		WithCategory("Groceries", 15, -85, "WHOLE FOODS MARKET", "SAFEWAY GROCERY STORE", "TRADER JOES MARKET").
		WithCategory("Coffee", 15, -4.5, "STARBUCKS COFFEE", "BLUE BOTTLE COFFEE", "PEETS COFFEE TEA").
		WithCategory("Transport", 15, -22, "UBER TRIP HELP", "LYFT RIDE SHARE", "SHELL GAS STATION").
		WithCategory("Salary", 15, 3200, "PAYROLL ACME CORP", "ACME CORP PAYROLL DEPOSIT", "DIRECT DEPOSIT ACME")
}
