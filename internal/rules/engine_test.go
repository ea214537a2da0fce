package rules

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PL7092/MyMoney-sub001/internal/model"
)

// fakeRuleSource serves a fixed rule set and counts usage bumps.
type fakeRuleSource struct {
	rules      []model.Rule
	lastOwner  string
	increments map[int64]*int64
}

func (f *fakeRuleSource) ListRules(_ context.Context, owner string, kind model.RuleKind, activeOnly bool) ([]model.Rule, error) {
	f.lastOwner = owner
	var out []model.Rule
	for _, r := range f.rules {
		if r.Kind != kind {
			continue
		}
		if activeOnly && !r.IsActive {
			continue
		}
		if r.Owner != model.GlobalOwner && r.Owner != owner {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuleSource) IncrementRuleUsage(id int64) {
	if f.increments == nil {
		f.increments = make(map[int64]*int64)
	}
	if _, ok := f.increments[id]; !ok {
		f.increments[id] = new(int64)
	}
	atomic.AddInt64(f.increments[id], 1)
}

func classificationRule(id int64, name string, keywords []string, category string, priority int, confidence float64) model.Rule {
	return model.Rule{
		ID:         id,
		Name:       name,
		Kind:       model.RuleClassification,
		Keywords:   keywords,
		Category:   category,
		Priority:   priority,
		Confidence: confidence,
		IsActive:   true,
	}
}

func TestClassifyKeywordAndRange(t *testing.T) {
	lo, hi := 100.0, 5000.0
	ranged := classificationRule(1, "salary", []string{"salario"}, "Salário", 50, 0.95)
	ranged.AmountMin = &lo
	ranged.AmountMax = &hi

	engine := NewEngine(&fakeRuleSource{rules: []model.Rule{ranged}})

	rec := &model.StagedRecord{Description: "Salário Março", Amount: 2500}
	got, err := engine.Classify(context.Background(), "user-1", rec)
	require.NoError(t, err)
	assert.Equal(t, "Salário", got.Category)
	assert.InDelta(t, 0.95, got.Confidence, 0.001)

	// Same keywords, amount outside the range: no match.
	small := &model.StagedRecord{Description: "Salário Março", Amount: 12}
	got, err = engine.Classify(context.Background(), "user-1", small)
	require.NoError(t, err)
	assert.Nil(t, got.RuleID)
	assert.Zero(t, got.Confidence)
}

func TestClassifyUnclassifiedFallback(t *testing.T) {
	engine := NewEngine(&fakeRuleSource{rules: []model.Rule{
		classificationRule(1, "groceries", []string{"supermercado"}, "Alimentação", 50, 0.9),
	}})

	got, err := engine.Classify(context.Background(), "user-1", &model.StagedRecord{Description: "Farmácia Central", Amount: 9.5})
	require.NoError(t, err)
	assert.Nil(t, got.RuleID)
	assert.Empty(t, got.Category)
	assert.Zero(t, got.Confidence)
}

func TestClassifyPriorityOutranksConfidence(t *testing.T) {
	// Property: a priority-5 rule always outranks a matching priority-10
	// rule, regardless of iteration order or confidence.
	high := classificationRule(1, "specific", []string{"continente"}, "Alimentação", 5, 0.6)
	low := classificationRule(2, "broad", []string{"continente"}, "Compras", 10, 0.99)

	orders := [][]model.Rule{{high, low}, {low, high}}
	for _, order := range orders {
		engine := NewEngine(&fakeRuleSource{rules: order})
		got, err := engine.Classify(context.Background(), "u", &model.StagedRecord{Description: "Continente Matosinhos", Amount: 30})
		require.NoError(t, err)
		assert.Equal(t, "Alimentação", got.Category)
	}
}

func TestClassifyTieBreaks(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Equal priority: higher confidence wins.
	a := classificationRule(1, "a", []string{"galp"}, "Transportes", 50, 0.8)
	b := classificationRule(2, "b", []string{"galp"}, "Casa", 50, 0.9)
	engine := NewEngine(&fakeRuleSource{rules: []model.Rule{a, b}})
	got, err := engine.Classify(context.Background(), "u", &model.StagedRecord{Description: "GALP Porto", Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, "Casa", got.Category)

	// Equal priority and confidence: more matched keywords wins.
	broad := classificationRule(3, "broad", []string{"uber"}, "Transportes", 50, 0.8)
	specific := classificationRule(4, "specific", []string{"uber", "eats"}, "Restauração", 50, 0.8)
	engine = NewEngine(&fakeRuleSource{rules: []model.Rule{broad, specific}})
	got, err = engine.Classify(context.Background(), "u", &model.StagedRecord{Description: "UBER *EATS LISBOA", Amount: 18})
	require.NoError(t, err)
	assert.Equal(t, "Restauração", got.Category)

	// Everything equal: most recently updated wins.
	older := classificationRule(5, "older", []string{"meo"}, "Casa", 50, 0.8)
	older.UpdatedAt = base
	newer := classificationRule(6, "newer", []string{"meo"}, "Telecomunicações", 50, 0.8)
	newer.UpdatedAt = base.Add(time.Hour)
	engine = NewEngine(&fakeRuleSource{rules: []model.Rule{older, newer}})
	got, err = engine.Classify(context.Background(), "u", &model.StagedRecord{Description: "MEO fatura", Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, "Telecomunicações", got.Category)
}

func TestClassifyDeterministic(t *testing.T) {
	// Property: identical record and rule set give identical suggestions
	// across repeated evaluations.
	src := &fakeRuleSource{rules: []model.Rule{
		classificationRule(1, "a", []string{"supermercado", "continente"}, "Alimentação", 50, 0.92),
		classificationRule(2, "b", []string{"continente"}, "Compras", 50, 0.92),
		classificationRule(3, "c", []string{"supermercado"}, "Mercearia", 50, 0.92),
	}}
	engine := NewEngine(src)
	rec := &model.StagedRecord{Description: "Supermercado Continente", Amount: 45.67}

	first, err := engine.Classify(context.Background(), "u", rec)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, classifyErr := engine.Classify(context.Background(), "u", rec)
		require.NoError(t, classifyErr)
		assert.Equal(t, first.Category, got.Category)
		assert.Equal(t, first.Confidence, got.Confidence)
		require.NotNil(t, got.RuleID)
		assert.Equal(t, *first.RuleID, *got.RuleID)
	}
}

func TestClassifyScopesRulesToOwner(t *testing.T) {
	mine := classificationRule(1, "mine", []string{"ginasio"}, "Desporto", 10, 0.9)
	mine.Owner = "user-1"
	theirs := classificationRule(2, "theirs", []string{"ginasio"}, "Lazer", 10, 0.9)
	theirs.Owner = "user-2"

	engine := NewEngine(&fakeRuleSource{rules: []model.Rule{mine, theirs}})
	got, err := engine.Classify(context.Background(), "user-1", &model.StagedRecord{Description: "Ginásio Fitness Hut", Amount: 35})
	require.NoError(t, err)
	assert.Equal(t, "Desporto", got.Category)
}

func TestClassifyBumpsUsage(t *testing.T) {
	src := &fakeRuleSource{rules: []model.Rule{
		classificationRule(7, "salary", []string{"salario"}, "Salário", 50, 0.95),
	}}
	engine := NewEngine(src)

	_, err := engine.Classify(context.Background(), "u", &model.StagedRecord{Description: "salario", Amount: 1000})
	require.NoError(t, err)
	require.Contains(t, src.increments, int64(7))
	assert.EqualValues(t, 1, atomic.LoadInt64(src.increments[7]))
}
