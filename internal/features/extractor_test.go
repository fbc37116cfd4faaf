package features

import (
	"math"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PAGAMENTO Conta Luz", "pagamento conta luz"},
		{"Café São João", "cafe sao joao"},
		{"PIX 12345678 MERCADO", "pix mercado"},
		{"COMPRA 123 LOJA", "compra loja"},
		{"UBER*TRIP  HELP.UBER.COM", "uber trip help uber com"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), "input %q", tt.in)
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t,
		[]string{"uber", "trip", "help", "uber trip", "trip help"},
		Terms("uber trip help"))
	assert.Equal(t, []string{"pix", "loja", "pix loja"}, Terms("pix a loja"))
	assert.Empty(t, Terms(""))
}

func sampleInput() Input {
	date := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	return Input{
		Descriptions: []string{"uber trip", "uber trip", "coffee shop", "coffee house", "rent"},
		Amounts:      []float64{-12, -15, -4, -5, 1500},
		Types:        []model.TransactionType{model.TypeDebit, model.TypeDebit, model.TypeDebit, model.TypeDebit, model.TypeCredit},
		Dates:        []time.Time{date, date, date, date, date},
	}
}

func TestFitTransform(t *testing.T) {
	e := NewExtractor(DefaultConfig())

	rows, err := e.FitTransform(sampleInput())
	require.NoError(t, err)
	require.Len(t, rows, 5)

	// "rent", "shop" and "house" appear in a single document each.
	assert.Equal(t, []string{"coffee", "trip", "uber", "uber trip", FeatureAmountLog, FeatureIsCredit, FeatureDayOfMonth}, e.FeatureNames())
	assert.Equal(t, 7, e.NumFeatures())

	for i, row := range rows {
		assert.Len(t, row, 7)
		var norm float64
		for _, v := range row[:4] {
			norm += v * v
		}
		if i == 4 {
			assert.Zero(t, norm)
		} else {
			assert.InDelta(t, 1.0, norm, 1e-9, "row %d", i)
		}
	}

	assert.InDelta(t, math.Log1p(12), rows[0][4], 1e-9)
	assert.Zero(t, rows[0][5])
	assert.Equal(t, 1.0, rows[4][5])
	assert.InDelta(t, 1.0, rows[0][6], 1e-9)
}

func TestFitTransformIDF(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	_, err := e.FitTransform(sampleInput())
	require.NoError(t, err)

	state, err := e.State()
	require.NoError(t, err)
	// coffee: n=5, df=2
	assert.InDelta(t, math.Log(6.0/3.0)+1, state.IDF[0], 1e-12)
}

func TestVocabularyCap(t *testing.T) {
	e := NewExtractor(Config{MaxVocabulary: 2, MinDocumentFrequency: 1})
	in := sampleInput()
	in.Descriptions = []string{"alpha beta", "alpha beta", "alpha gamma", "delta", "alpha"}

	_, err := e.FitTransform(in)
	require.NoError(t, err)

	// alpha=4, beta=2, "alpha beta"=2: tie broken alphabetically.
	assert.Equal(t, []string{"alpha", "alpha beta"}, e.FeatureNames()[:2])
}

func TestTransformRequiresFit(t *testing.T) {
	e := NewExtractor(DefaultConfig())

	_, err := e.Transform(sampleInput())
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = e.State()
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.Nil(t, e.FeatureNames())
}

func TestLengthMismatch(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	in := sampleInput()
	in.Amounts = in.Amounts[:2]

	_, err := e.FitTransform(in)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestTransformMatchesFitTransform(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	fitted, err := e.FitTransform(sampleInput())
	require.NoError(t, err)

	again, err := e.Transform(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, fitted, again)

	unseen := Input{
		Descriptions: []string{"brand new merchant"},
		Amounts:      []float64{0},
		Types:        []model.TransactionType{model.TypeCredit},
		Dates:        []time.Time{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	rows, err := e.Transform(unseen)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 1, 1.0 / 31.0}, rows[0])
}

func TestStateRoundTrip(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	want, err := e.FitTransform(sampleInput())
	require.NoError(t, err)

	state, err := e.State()
	require.NoError(t, err)

	restored, err := FromState(state)
	require.NoError(t, err)
	got, err := restored.Transform(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	state.IDF = state.IDF[:1]
	_, err = FromState(state)
	assert.Error(t, err)
}
