// Package rules implements the classification rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/normalize"
)

// RuleSource is the slice of the storage contract the engine consumes.
type RuleSource interface {
	ListRules(ctx context.Context, owner string, kind model.RuleKind, activeOnly bool) ([]model.Rule, error)
	IncrementRuleUsage(id int64)
}

// Suggestion is the engine's verdict for one record. A nil RuleID with
// confidence 0 means unclassified; any higher-confidence oracle opinion may
// replace it downstream.
type Suggestion struct {
	RuleID     *int64
	Direction  *model.Direction
	Category   string
	Account    string
	Confidence float64
}

// Engine evaluates the active classification rules visible to an owner.
type Engine struct {
	storage RuleSource
}

// NewEngine creates a rule engine backed by the given rule source.
func NewEngine(storage RuleSource) *Engine {
	return &Engine{storage: storage}
}

// scored pairs a matching rule with its specificity.
type scored struct {
	rule    model.Rule
	matched int
}

// Classify evaluates the owner's visible rules (user-scoped plus global)
// against a normalized record. The only mutation is a fire-and-forget bump
// of the winning rule's usage counter.
func (e *Engine) Classify(ctx context.Context, owner string, rec *model.StagedRecord) (Suggestion, error) {
	visible, err := e.storage.ListRules(ctx, owner, model.RuleClassification, true)
	if err != nil {
		return Suggestion{}, fmt.Errorf("failed to load classification rules: %w", err)
	}

	tokens := normalize.TokenSet(normalize.Tokenize(rec.Description))

	var candidates []scored
	for _, rule := range visible {
		matched := matchedKeywords(rule.Keywords, tokens)
		if matched == 0 {
			continue
		}
		if !rule.MatchesAmount(rec.Amount) {
			continue
		}
		candidates = append(candidates, scored{rule: rule, matched: matched})
	}

	if len(candidates) == 0 {
		return Suggestion{Confidence: 0}, nil
	}

	rankCandidates(candidates)

	top := candidates[0].rule
	e.storage.IncrementRuleUsage(top.ID)

	id := top.ID
	return Suggestion{
		RuleID:     &id,
		Category:   top.Category,
		Account:    top.Account,
		Confidence: top.Confidence,
		Direction:  top.ActionDirection,
	}, nil
}

// matchedKeywords counts how many of the rule's keywords appear in the
// record's token set. Keywords are folded the same way the tokenizer folds
// descriptions so matching is case- and accent-insensitive.
func matchedKeywords(keywords []string, tokens map[string]struct{}) int {
	matched := 0
	for _, kw := range keywords {
		if _, ok := tokens[normalize.FoldAccents(kw)]; ok {
			matched++
		}
	}
	return matched
}

// rankCandidates orders matches by priority ascending, declared confidence
// descending, specificity descending, then most recently updated. The final
// id comparison makes the order total so evaluation is deterministic
// regardless of storage iteration order.
func rankCandidates(candidates []scored) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority < b.rule.Priority
		}
		if a.rule.Confidence != b.rule.Confidence {
			return a.rule.Confidence > b.rule.Confidence
		}
		if a.matched != b.matched {
			return a.matched > b.matched
		}
		if !a.rule.UpdatedAt.Equal(b.rule.UpdatedAt) {
			return a.rule.UpdatedAt.After(b.rule.UpdatedAt)
		}
		return a.rule.ID < b.rule.ID
	})
}
