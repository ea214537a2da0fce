package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

func testNormalizer() *Normalizer {
	return &Normalizer{Now: func() time.Time {
		return time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	}}
}

func TestNormalizeAmounts(t *testing.T) {
	tests := []struct {
		name          string
		amount        string
		wantMagnitude float64
		wantDirection model.Direction
		wantFailed    bool
	}{
		{name: "plain decimal", amount: "45.67", wantMagnitude: 45.67, wantDirection: model.DirectionExpense},
		{name: "negative is expense", amount: "-45.67", wantMagnitude: 45.67, wantDirection: model.DirectionExpense},
		{name: "explicit plus is income", amount: "+2500", wantMagnitude: 2500, wantDirection: model.DirectionIncome},
		{name: "european separators", amount: "1.234,56", wantMagnitude: 1234.56, wantDirection: model.DirectionExpense},
		{name: "us separators", amount: "1,234.56", wantMagnitude: 1234.56, wantDirection: model.DirectionExpense},
		{name: "comma decimal", amount: "45,67", wantMagnitude: 45.67, wantDirection: model.DirectionExpense},
		{name: "currency symbol", amount: "€ 19.90", wantMagnitude: 19.90, wantDirection: model.DirectionExpense},
		{name: "missing amount", amount: "", wantFailed: true},
		{name: "garbage amount", amount: "abc", wantFailed: true},
	}

	n := testNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := n.Normalize("s1", service.RawRecord{
				Sequence:    1,
				Date:        "2025-03-01",
				Description: "Teste",
				Amount:      tt.amount,
			})

			if tt.wantFailed {
				assert.Equal(t, model.RecordFailed, rec.Status)
				assert.NotEmpty(t, rec.ErrorText)
				return
			}

			require.Equal(t, model.RecordPending, rec.Status)
			assert.InDelta(t, tt.wantMagnitude, rec.Amount, 0.0001)
			assert.Equal(t, tt.wantDirection, rec.Direction)
			assert.GreaterOrEqual(t, rec.Amount, 0.0)
			assert.True(t, model.ValidDirection(rec.Direction))
		})
	}
}

func TestNormalizeDates(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name       string
		date       string
		want       time.Time
		wantFailed bool
	}{
		{name: "iso", date: "2025-03-01", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "portuguese slashes", date: "01/03/2025", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "dotted", date: "01.03.2025", want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty falls back to today", date: "", want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "nonsense", date: "soon", wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := n.Normalize("s1", service.RawRecord{Date: tt.date, Description: "x", Amount: "1"})
			if tt.wantFailed {
				assert.Equal(t, model.RecordFailed, rec.Status)
				return
			}
			require.Equal(t, model.RecordPending, rec.Status)
			assert.True(t, tt.want.Equal(rec.Date), "got %v want %v", rec.Date, tt.want)
		})
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	rec := testNormalizer().Normalize("s1", service.RawRecord{
		Sequence:    3,
		Raw:         ";;;",
		DecodeError: "wrong column count",
	})

	assert.Equal(t, model.RecordFailed, rec.Status)
	assert.Contains(t, rec.ErrorText, "wrong column count")
	assert.Equal(t, 3, rec.Sequence)
	assert.Equal(t, ";;;", rec.RawData)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "accents folded", input: "Salário Março", want: []string{"marco", "salario"}},
		{name: "case insensitive", input: "SUPERMERCADO Continente", want: []string{"continente", "supermercado"}},
		{name: "punctuation split", input: "uber*eats lisboa-pt", want: []string{"eats", "lisboa", "pt", "uber"}},
		{name: "duplicates collapse", input: "pingo doce pingo doce", want: []string{"doce", "pingo"}},
		{name: "empty", input: "  ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}
