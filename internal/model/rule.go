package model

import (
	"fmt"
	"time"
)

// RuleKind distinguishes what a rule is for.
type RuleKind string

// Rule kind constants.
const (
	RuleClassification   RuleKind = "classification"
	RuleDuplicate        RuleKind = "duplicate-detection"
	RuleNormalization    RuleKind = "description-normalization"
	RuleAmountValidation RuleKind = "amount-validation"
)

// GlobalOwner is the owner value for rules visible to every user.
const GlobalOwner = ""

// Rule is a prioritized condition/action pair used to classify or flag
// transactions. Lower priority numbers evaluate first. System-seeded rules
// are immutable and never physically deleted.
type Rule struct {
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	AmountMin           *float64   `json:"amount_min,omitempty"`
	AmountMax           *float64   `json:"amount_max,omitempty"`
	WindowDays          *int       `json:"window_days,omitempty"`
	SimilarityThreshold *float64   `json:"similarity_threshold,omitempty"`
	ActionDirection     *Direction `json:"action_direction,omitempty"`
	Name                string     `json:"name"`
	Owner               string     `json:"owner"`
	Kind                RuleKind   `json:"kind"`
	Category            string     `json:"category"`
	Account             string     `json:"account"`
	Keywords            []string   `json:"keywords"`
	ID                  int64      `json:"id"`
	Priority            int        `json:"priority"`
	UsageCount          int64      `json:"usage_count"`
	Confidence          float64    `json:"confidence"`
	SuccessRate         float64    `json:"success_rate"`
	IsActive            bool       `json:"is_active"`
	IsSystem            bool       `json:"is_system"`
}

// MatchesAmount reports whether a magnitude falls inside the rule's numeric
// range. An absent bound is unconstrained.
func (r *Rule) MatchesAmount(amount float64) bool {
	if r.AmountMin != nil && amount < *r.AmountMin {
		return false
	}
	if r.AmountMax != nil && amount > *r.AmountMax {
		return false
	}
	return true
}

// Validate checks the structural invariants of a rule.
func (r *Rule) Validate() error {
	switch r.Kind {
	case RuleClassification, RuleDuplicate, RuleNormalization, RuleAmountValidation:
	default:
		return fmt.Errorf("invalid rule kind %q", r.Kind)
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Kind == RuleClassification {
		if len(r.Keywords) == 0 {
			return fmt.Errorf("classification rule needs at least one keyword")
		}
		if r.Category == "" {
			return fmt.Errorf("classification rule needs a target category")
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule confidence %v outside [0,1]", r.Confidence)
	}
	if r.SuccessRate < 0 || r.SuccessRate > 1 {
		return fmt.Errorf("rule success rate %v outside [0,1]", r.SuccessRate)
	}
	if r.AmountMin != nil && r.AmountMax != nil && *r.AmountMin > *r.AmountMax {
		return fmt.Errorf("rule amount range is inverted")
	}
	return nil
}
