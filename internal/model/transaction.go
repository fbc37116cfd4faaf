package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the debit/credit flag of a transaction.
type TransactionType string

// Transaction type constants.
const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

// TypeForAmount derives the transaction type from the sign of amount.
// Zero counts as a credit.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.Sign() >= 0 {
		return TypeCredit
	}
	return TypeDebit
}

// ParseTransactionType accepts the spellings found in training files.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "credito", "crédito", "c", "cr", "1":
		return TypeCredit, true
	case "debit", "debito", "débito", "d", "dr", "0":
		return TypeDebit, true
	}
	return "", false
}

// IsCredit reports whether t is a credit.
func (t TransactionType) IsCredit() bool {
	return t == TypeCredit
}

// ParsedTransaction is one transaction decoded from a statement file.
type ParsedTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	FITID       string
	Description string
	Type        TransactionType
	OFXType     string
	Payee       string
	Memo        string
	CheckNumber string
}

// Statement is the canonical output of the statement parser.
type Statement struct {
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	BalanceDate      *time.Time
	Balance          decimal.NullDecimal
	AvailableBalance decimal.NullDecimal
	InstitutionName  string
	InstitutionID    string
	AccountID        string
	AccountType      string
	BankID           string
	Currency         string
	Transactions     []ParsedTransaction
}

// SynthesizeFITID derives a stable identifier for transactions that came
// without one. Identical inputs always produce the same id.
func SynthesizeFITID(accountID string, date time.Time, amount decimal.Decimal, description string) string {
	data := fmt.Sprintf("%s_%s_%s_%s",
		accountID,
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16])
}

// BuildDescription joins payee and memo, dropping repeats and empty parts.
func BuildDescription(parts ...string) string {
	seen := make(map[string]bool, len(parts))
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Join(strings.Fields(part), " ")
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		kept = append(kept, part)
	}
	return strings.Join(kept, " ")
}
