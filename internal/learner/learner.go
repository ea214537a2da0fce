// Package learner applies user feedback to the rule store: success-rate
// updates on matched rules and synthesis of new user-scoped rules.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/normalize"
)

// defaultAlpha weights the most recent observation in the running average.
const defaultAlpha = 0.3

// userRulePriority places user-created rules ahead of the system defaults,
// which are seeded at priority 50 and above.
const userRulePriority = 10

// newRuleConfidence is the declared confidence of synthesized rules.
const newRuleConfidence = 0.85

// Store is the slice of the storage contract the learner consumes.
type Store interface {
	GetStagedRecord(ctx context.Context, sessionID string, sequence int) (*model.StagedRecord, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ApplyFeedback(ctx context.Context, event *model.FeedbackEvent, status model.RecordStatus, category string, successRate *float64, newRule *model.Rule) (bool, error)
}

// Learner consumes feedback events and updates rule statistics.
type Learner struct {
	store Store
	alpha float64
}

// New creates a learner with the default recency weight.
func New(store Store) *Learner {
	return &Learner{store: store, alpha: defaultAlpha}
}

// Apply processes one feedback event for the given owner. Everything the
// event implies — the review verdict, the running-average update, rule
// creation — is prepared here and committed by the store as one transaction
// keyed on the event, so a repeat submission for the same record changes
// nothing and a failure partway through leaves no trace for a retry to trip
// over.
func (l *Learner) Apply(ctx context.Context, owner string, event *model.FeedbackEvent) error {
	rec, err := l.store.GetStagedRecord(ctx, event.SessionID, event.RecordSequence)
	if err != nil {
		return err
	}

	status := model.RecordAccepted
	category := rec.SuggestedCategory
	if event.Choice == model.FeedbackOverride {
		status = model.RecordOverridden
		category = event.ChosenCategory
	}

	var rate *float64
	if event.RuleID != nil {
		rate, err = l.successRate(ctx, *event.RuleID, event.Choice)
		if err != nil {
			return err
		}
	}

	// A new rule is synthesized on explicit request, or whenever no rule
	// matched and the user supplied a category to learn from.
	var rule *model.Rule
	if event.CreateRule || (event.RuleID == nil && category != "") {
		rule, err = l.buildRule(owner, rec, category)
		if err != nil {
			return err
		}
	}

	created, err := l.store.ApplyFeedback(ctx, event, status, category, rate, rule)
	if err != nil {
		return err
	}
	if !created {
		slog.Debug("Duplicate feedback ignored",
			"session_id", event.SessionID, "sequence", event.RecordSequence)
	}
	return nil
}

// successRate folds the outcome into the rule's success rate with an
// exponentially weighted running average: recent behavior dominates without
// discarding history. The first observation seeds the average directly.
func (l *Learner) successRate(ctx context.Context, ruleID int64, choice model.FeedbackChoice) (*float64, error) {
	rule, err := l.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	outcome := 0.0
	if choice == model.FeedbackAccept {
		outcome = 1.0
	}

	rate := outcome
	if rule.UsageCount > 0 {
		rate = l.alpha*outcome + (1-l.alpha)*rule.SuccessRate
	}
	return &rate, nil
}

// buildRule synthesizes a user-scoped classification rule from the record's
// description tokens and the chosen category. A nil rule means there is
// nothing worth learning; name collisions with an existing rule are absorbed
// by the store, and existing system rules are never touched.
func (l *Learner) buildRule(owner string, rec *model.StagedRecord, category string) (*model.Rule, error) {
	if category == "" {
		return nil, fmt.Errorf("%w: cannot create a rule without a category", common.ErrValidation)
	}

	keywords := ruleKeywords(rec.Description)
	if len(keywords) == 0 {
		slog.Debug("No usable keywords for rule synthesis", "description", rec.Description)
		return nil, nil
	}

	return &model.Rule{
		Owner:      owner,
		Kind:       model.RuleClassification,
		Name:       "auto: " + strings.Join(keywords, " "),
		Keywords:   keywords,
		Category:   category,
		Confidence: newRuleConfidence,
		Priority:   userRulePriority,
		IsActive:   true,
	}, nil
}

// ruleKeywords keeps the description tokens worth matching on: words of at
// least three characters with no digits, dropping reference numbers and
// amounts that would make the rule too specific.
func ruleKeywords(description string) []string {
	var keywords []string
	for _, token := range normalize.Tokenize(description) {
		if len(token) < 3 {
			continue
		}
		if strings.ContainsFunc(token, unicode.IsDigit) {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}
