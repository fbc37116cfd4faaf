package ofx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signonOnlyOFX = `OFXHEADER:100
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
</SONRS>
</SIGNONMSGSRSV1>
</OFX>`

func TestParseStatement(t *testing.T) {
	tests := []struct {
		name          string
		data          string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			data:          testutil.SampleBankStatement().String(),
			expectedCount: 3,
		},
		{
			name: "valid credit card statement",
			data: testutil.NewStatement().AsCreditCard().WithAccount("4111111111111111").WithTransactions(
				testutil.OFXTransaction{FITID: "CC1", Amount: "-45.99", Name: "AMAZON.COM"},
				testutil.OFXTransaction{FITID: "CC2", Amount: "-15.00", Name: "NETFLIX.COM"},
			).String(),
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			data:          "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			data:          "",
			expectedError: true,
		},
		{
			name:          "no statement",
			data:          signonOnlyOFX,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(nil)

			stmt, err := parser.ParseStatement(context.Background(), strings.NewReader(tt.data))

			if tt.expectedError {
				require.Error(t, err)
				var parseErr *ParsingError
				assert.True(t, errors.As(err, &parseErr))
				assert.Nil(t, stmt)
				return
			}
			require.NoError(t, err)
			assert.Len(t, stmt.Transactions, tt.expectedCount)
		})
	}
}

func TestParseBankStatementMetadata(t *testing.T) {
	parser := NewParser(nil)

	stmt, err := parser.ParseStatement(context.Background(), bytes.NewReader(testutil.SampleBankStatement().Bytes()))
	require.NoError(t, err)

	assert.Equal(t, "Test Bank", stmt.InstitutionName)
	assert.Equal(t, "1234567890", stmt.AccountID)
	require.True(t, stmt.Balance.Valid)
	assert.True(t, stmt.Balance.Decimal.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, stmt.PeriodStart)
	require.NotNil(t, stmt.PeriodEnd)
	assert.Equal(t, 2024, stmt.PeriodStart.Year())
	assert.Equal(t, time.January, stmt.PeriodEnd.Month())
	assert.Equal(t, 31, stmt.PeriodEnd.Day())

	first := stmt.Transactions[0]
	assert.Equal(t, "2024011501", first.FITID)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("-25.50")))
	assert.Equal(t, model.TypeDebit, first.Type)
	assert.Equal(t, "debit", first.OFXType)
	assert.Equal(t, 15, first.Date.Day())

	second := stmt.Transactions[1]
	assert.Equal(t, "Whole Foods Market GROCERIES", second.Description)
	assert.Equal(t, "Whole Foods Market", second.Payee)
	assert.Equal(t, "GROCERIES", second.Memo)

	assert.Equal(t, "1234", stmt.Transactions[2].CheckNumber)
}

func TestParseCreditIsDerivedFromSign(t *testing.T) {
	data := testutil.NewStatement().WithTransactions(
		testutil.OFXTransaction{FITID: "A", Amount: "100.00", Name: "REFUND", TrnType: "DEBIT"},
		testutil.OFXTransaction{FITID: "B", Amount: "-1.00", Name: "FEE", TrnType: "CREDIT"},
	).String()

	stmt, err := NewParser(nil).ParseStatement(context.Background(), strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, model.TypeCredit, stmt.Transactions[0].Type)
	assert.Equal(t, model.TypeDebit, stmt.Transactions[1].Type)
}

func TestParseStatementCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser(nil).ParseStatement(ctx, strings.NewReader(testutil.SampleBankStatement().String()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertTransactionSynthesizesFITID(t *testing.T) {
	var amount ofxgo.Amount
	amount.SetFrac64(-2550, 100)

	ofxTx := ofxgo.Transaction{
		TrnType:  ofxgo.TrnTypeDebit,
		DtPosted: ofxgo.Date{Time: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)},
		TrnAmt:   amount,
		Name:     "COFFEE   SHOP",
		Memo:     "COFFEE SHOP",
	}

	first := convertTransaction(ofxTx, "ACC-1")
	second := convertTransaction(ofxTx, "ACC-1")

	assert.NotEmpty(t, first.FITID)
	assert.Equal(t, first.FITID, second.FITID)
	assert.Equal(t, "COFFEE SHOP", first.Description)
	assert.Equal(t, model.SynthesizeFITID("ACC-1", first.Date, first.Amount, "COFFEE SHOP"), first.FITID)
	assert.NotEqual(t, first.FITID, convertTransaction(ofxTx, "ACC-2").FITID)
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n  <OFX>\n<SEVERITY>Info</SEVERITY>\n<STMTTRN\n"
	out := preprocessOFX(in)

	assert.True(t, strings.HasPrefix(out, "<OFX>"))
	assert.Contains(t, out, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, out, "<STMTTRN>")
}
