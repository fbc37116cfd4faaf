// Package ofx decodes OFX/QFX bank statement exports.
package ofx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// ErrNoStatement is returned when a file carries no bank or card statement.
var ErrNoStatement = errors.New("no account statement found")

// ParsingError reports a statement file that could not be decoded.
type ParsingError struct {
	Err    error
	Reason string
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse statement: %s: %v", e.Reason, e.Err)
	}
	return "failed to parse statement: " + e.Reason
}

func (e *ParsingError) Unwrap() error {
	return e.Err
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line missing their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, "\ufeff \t\r\n")

	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// LooksLikeOFX is a cheap check used before a full parse.
func LooksLikeOFX(content []byte) bool {
	return bytes.Contains(bytes.ToUpper(content), []byte("OFX"))
}

// ParseStatement decodes a statement file. Account metadata comes from the
// first statement in the file; transactions are collected from all of them.
// Nothing is returned unless the whole file decodes.
func (p *Parser) ParseStatement(ctx context.Context, reader io.Reader) (*model.Statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, &ParsingError{Reason: "unreadable file", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !LooksLikeOFX(content) {
		return nil, &ParsingError{Reason: "file does not look like OFX"}
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, &ParsingError{Reason: "malformed OFX", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stmt *model.Statement
	var bankStmts, ccStmts int

	merge := func(next *model.Statement) {
		if stmt == nil {
			stmt = next
			return
		}
		stmt.Transactions = append(stmt.Transactions, next.Transactions...)
	}

	for _, msg := range resp.Bank {
		if s, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			merge(convertBankStatement(s))
		}
	}
	for _, msg := range resp.CreditCard {
		if s, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			merge(convertCreditCardStatement(s))
		}
	}

	if stmt == nil || stmt.AccountID == "" {
		return nil, &ParsingError{Reason: "account metadata missing", Err: ErrNoStatement}
	}

	stmt.InstitutionName = strings.TrimSpace(string(resp.Signon.Org))
	stmt.InstitutionID = strings.TrimSpace(string(resp.Signon.Fid))
	if stmt.InstitutionName == "" {
		stmt.InstitutionName = "Unknown"
	}

	p.logger.Info("Parsed OFX file",
		"account", stmt.AccountID,
		"total_transactions", len(stmt.Transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return stmt, nil
}

func convertBankStatement(s *ofxgo.StatementResponse) *model.Statement {
	stmt := &model.Statement{
		AccountID:   string(s.BankAcctFrom.AcctID),
		AccountType: s.BankAcctFrom.AcctType.String(),
		BankID:      string(s.BankAcctFrom.BankID),
		Currency:    s.CurDef.String(),
	}
	fillBalances(stmt, s.BalAmt, s.DtAsOf, s.AvailBalAmt)
	fillTransactions(stmt, s.BankTranList)
	return stmt
}

func convertCreditCardStatement(s *ofxgo.CCStatementResponse) *model.Statement {
	stmt := &model.Statement{
		AccountID:   string(s.CCAcctFrom.AcctID),
		AccountType: "CREDITCARD",
		Currency:    s.CurDef.String(),
	}
	fillBalances(stmt, s.BalAmt, s.DtAsOf, s.AvailBalAmt)
	fillTransactions(stmt, s.BankTranList)
	return stmt
}

func fillBalances(stmt *model.Statement, balance ofxgo.Amount, asOf ofxgo.Date, available *ofxgo.Amount) {
	if amount, ok := toDecimal(balance); ok {
		stmt.Balance = decimal.NewNullDecimal(amount)
	}
	if available != nil {
		if amount, ok := toDecimal(*available); ok {
			stmt.AvailableBalance = decimal.NewNullDecimal(amount)
		}
	}
	stmt.BalanceDate = datePtr(asOf)
}

func fillTransactions(stmt *model.Statement, list *ofxgo.TransactionList) {
	if list == nil {
		return
	}
	stmt.PeriodStart = datePtr(list.DtStart)
	stmt.PeriodEnd = datePtr(list.DtEnd)

	for _, ofxTx := range list.Transactions {
		stmt.Transactions = append(stmt.Transactions, convertTransaction(ofxTx, stmt.AccountID))
	}
}

// convertTransaction converts an OFX transaction to our model.
func convertTransaction(ofxTx ofxgo.Transaction, accountID string) model.ParsedTransaction {
	amount, _ := toDecimal(ofxTx.TrnAmt)

	payee := strings.TrimSpace(string(ofxTx.Name))
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		payee = strings.TrimSpace(string(ofxTx.Payee.Name))
	}
	memo := strings.TrimSpace(string(ofxTx.Memo))

	tx := model.ParsedTransaction{
		FITID:       strings.TrimSpace(string(ofxTx.FiTID)),
		Date:        ofxTx.DtPosted.Time,
		Description: model.BuildDescription(payee, memo),
		Amount:      amount,
		Type:        model.TypeForAmount(amount),
		OFXType:     strings.ToLower(ofxTx.TrnType.String()),
		Payee:       payee,
		Memo:        memo,
		CheckNumber: strings.TrimSpace(string(ofxTx.CheckNum)),
	}

	if tx.FITID == "" {
		tx.FITID = model.SynthesizeFITID(accountID, tx.Date, tx.Amount, tx.Description)
	}

	return tx
}

func toDecimal(amount ofxgo.Amount) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(amount.Rat.FloatString(4))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func datePtr(d ofxgo.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
