package testutil

import (
	"fmt"
	"strings"
	"time"
)

// OFXTransaction is one STMTTRN entry written by StatementBuilder.
type OFXTransaction struct {
	Date     time.Time
	FITID    string
	Amount   string
	Name     string
	Memo     string
	TrnType  string
	CheckNum string
}

// StatementBuilder produces SGML OFX statements for tests.
type StatementBuilder struct {
	org          string
	accountID    string
	balance      string
	transactions []OFXTransaction
	creditCard   bool
}

// NewStatement starts a checking account statement.
func NewStatement() *StatementBuilder {
	return &StatementBuilder{
		org:       "Test Bank",
		accountID: "1234567890",
		balance:   "1000.00",
	}
}

// WithOrg sets the institution name.
func (b *StatementBuilder) WithOrg(org string) *StatementBuilder {
	b.org = org
	return b
}

// WithAccount sets the account id.
func (b *StatementBuilder) WithAccount(id string) *StatementBuilder {
	b.accountID = id
	return b
}

// WithBalance sets the ledger balance.
func (b *StatementBuilder) WithBalance(balance string) *StatementBuilder {
	b.balance = balance
	return b
}

// AsCreditCard writes a credit card statement instead of a bank one.
func (b *StatementBuilder) AsCreditCard() *StatementBuilder {
	b.creditCard = true
	return b
}

// WithTransaction appends a transaction.
func (b *StatementBuilder) WithTransaction(txn OFXTransaction) *StatementBuilder {
	b.transactions = append(b.transactions, txn)
	return b
}

// WithTransactions appends several transactions.
func (b *StatementBuilder) WithTransactions(txns ...OFXTransaction) *StatementBuilder {
	b.transactions = append(b.transactions, txns...)
	return b
}

// Bytes renders the statement.
func (b *StatementBuilder) Bytes() []byte {
	return []byte(b.String())
}

// String renders the statement.
func (b *StatementBuilder) String() string {
	var sb strings.Builder

	sb.WriteString(`OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
`)
	if b.org != "" {
		fmt.Fprintf(&sb, "<FI>\n<ORG>%s\n<FID>0001\n</FI>\n", b.org)
	}
	sb.WriteString("</SONRS>\n</SIGNONMSGSRSV1>\n")

	if b.creditCard {
		fmt.Fprintf(&sb, "<CREDITCARDMSGSRSV1>\n<CCSTMTTRNRS>\n<TRNUID>1\n<STATUS>\n<CODE>0\n<SEVERITY>INFO\n</STATUS>\n<CCSTMTRS>\n<CURDEF>USD\n<CCACCTFROM>\n<ACCTID>%s\n</CCACCTFROM>\n", b.accountID)
	} else {
		fmt.Fprintf(&sb, "<BANKMSGSRSV1>\n<STMTTRNRS>\n<TRNUID>1\n<STATUS>\n<CODE>0\n<SEVERITY>INFO\n</STATUS>\n<STMTRS>\n<CURDEF>USD\n<BANKACCTFROM>\n<BANKID>123456789\n<ACCTID>%s\n<ACCTTYPE>CHECKING\n</BANKACCTFROM>\n", b.accountID)
	}

	sb.WriteString("<BANKTRANLIST>\n<DTSTART>20240101120000[0:GMT]\n<DTEND>20240131120000[0:GMT]\n")
	for _, txn := range b.transactions {
		writeTransaction(&sb, txn)
	}
	sb.WriteString("</BANKTRANLIST>\n")
	fmt.Fprintf(&sb, "<LEDGERBAL>\n<BALAMT>%s\n<DTASOF>20240131120000[0:GMT]\n</LEDGERBAL>\n", b.balance)

	if b.creditCard {
		sb.WriteString("</CCSTMTRS>\n</CCSTMTTRNRS>\n</CREDITCARDMSGSRSV1>\n")
	} else {
		sb.WriteString("</STMTRS>\n</STMTTRNRS>\n</BANKMSGSRSV1>\n")
	}
	sb.WriteString("</OFX>\n")

	return sb.String()
}

func writeTransaction(sb *strings.Builder, txn OFXTransaction) {
	trnType := txn.TrnType
	if trnType == "" {
		trnType = "CREDIT"
		if strings.HasPrefix(txn.Amount, "-") {
			trnType = "DEBIT"
		}
	}
	date := txn.Date
	if date.IsZero() {
		date = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	}

	sb.WriteString("<STMTTRN>\n")
	fmt.Fprintf(sb, "<TRNTYPE>%s\n", trnType)
	fmt.Fprintf(sb, "<DTPOSTED>%s[0:GMT]\n", date.UTC().Format("20060102150405"))
	fmt.Fprintf(sb, "<TRNAMT>%s\n", txn.Amount)
	if txn.FITID != "" {
		fmt.Fprintf(sb, "<FITID>%s\n", txn.FITID)
	}
	if txn.CheckNum != "" {
		fmt.Fprintf(sb, "<CHECKNUM>%s\n", txn.CheckNum)
	}
	if txn.Name != "" {
		fmt.Fprintf(sb, "<NAME>%s\n", txn.Name)
	}
	if txn.Memo != "" {
		fmt.Fprintf(sb, "<MEMO>%s\n", txn.Memo)
	}
	sb.WriteString("</STMTTRN>\n")
}

// SampleBankStatement is a three transaction checking statement.
func SampleBankStatement() *StatementBuilder {
	return NewStatement().WithTransactions(
		OFXTransaction{FITID: "2024011501", Date: day(15), Amount: "-25.50", Name: "STARBUCKS STORE 1234"},
		OFXTransaction{FITID: "2024012001", Date: day(20), Amount: "-125.00", Name: "Whole Foods Market", Memo: "GROCERIES"},
		OFXTransaction{FITID: "2024012501", Date: day(25), Amount: "-500.00", Name: "CHECK 1234", CheckNum: "1234", TrnType: "CHECK"},
	)
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}
