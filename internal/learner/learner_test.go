package learner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/testutil"
)

func stageRecord(t *testing.T, s interface {
	CreateSession(ctx context.Context, session *model.ImportSession) error
	SaveStagedRecords(ctx context.Context, records []model.StagedRecord) error
}, sessionID string, rec model.StagedRecord) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &model.ImportSession{
		ID: sessionID, Owner: "user-1", Source: model.SourcePaste, State: model.StateUploading,
	}))
	rec.SessionID = sessionID
	require.NoError(t, s.SaveStagedRecords(ctx, []model.StagedRecord{rec}))
}

func TestApplyAcceptUpdatesRule(t *testing.T) {
	s := testutil.SetupTestDB(t)
	ctx := context.Background()

	rule := &model.Rule{
		Owner: "user-1", Kind: model.RuleClassification, Name: "ginásio",
		Keywords: []string{"ginasio"}, Category: "Desporto",
		Confidence: 0.85, Priority: 10, IsActive: true,
	}
	require.NoError(t, s.CreateRule(ctx, rule))

	stageRecord(t, s, "s1", model.StagedRecord{
		Sequence: 1, Date: time.Now(), Description: "Ginásio Fitness Hut",
		Amount: 35, Direction: model.DirectionExpense,
		SuggestedCategory: "Desporto", Confidence: 0.85, Status: model.RecordSuggested,
	})

	event := &model.FeedbackEvent{
		SessionID: "s1", RecordSequence: 1,
		RuleID: &rule.ID, Choice: model.FeedbackAccept,
	}
	require.NoError(t, New(s).Apply(ctx, "user-1", event))

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	// First observation seeds the average directly.
	assert.InDelta(t, 1.0, got.SuccessRate, 0.001)
	assert.EqualValues(t, 1, got.UsageCount)

	rec, err := s.GetStagedRecord(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, model.RecordAccepted, rec.Status)
	assert.Equal(t, "Desporto", rec.ReviewedCategory)
}

func TestApplyOverrideLowersRate(t *testing.T) {
	s := testutil.SetupTestDB(t)
	ctx := context.Background()

	rule := &model.Rule{
		Owner: "user-1", Kind: model.RuleClassification, Name: "cafés",
		Keywords: []string{"cafe"}, Category: "Restauração",
		Confidence: 0.8, Priority: 10, IsActive: true,
	}
	require.NoError(t, s.CreateRule(ctx, rule))
	// Simulate history: one prior accepted use.
	require.NoError(t, s.UpdateRuleStats(ctx, rule.ID, 1.0))

	stageRecord(t, s, "s1", model.StagedRecord{
		Sequence: 1, Date: time.Now(), Description: "Café Nicola",
		Amount: 4, Direction: model.DirectionExpense,
		SuggestedCategory: "Restauração", Status: model.RecordSuggested,
	})

	event := &model.FeedbackEvent{
		SessionID: "s1", RecordSequence: 1,
		RuleID: &rule.ID, Choice: model.FeedbackOverride, ChosenCategory: "Lazer",
	}
	require.NoError(t, New(s).Apply(ctx, "user-1", event))

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	// EWMA with alpha 0.3: 0.3*0 + 0.7*1.0.
	assert.InDelta(t, 0.7, got.SuccessRate, 0.001)

	rec, err := s.GetStagedRecord(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, model.RecordOverridden, rec.Status)
	assert.Equal(t, "Lazer", rec.ReviewedCategory)
}

func TestApplyIdempotent(t *testing.T) {
	s := testutil.SetupTestDB(t)
	ctx := context.Background()

	rule := &model.Rule{
		Owner: "user-1", Kind: model.RuleClassification, Name: "ginásio",
		Keywords: []string{"ginasio"}, Category: "Desporto",
		Confidence: 0.85, Priority: 10, IsActive: true,
	}
	require.NoError(t, s.CreateRule(ctx, rule))

	stageRecord(t, s, "s1", model.StagedRecord{
		Sequence: 1, Date: time.Now(), Description: "Ginásio Fitness Hut",
		Amount: 35, Direction: model.DirectionExpense,
		SuggestedCategory: "Desporto", Status: model.RecordSuggested,
	})

	event := &model.FeedbackEvent{
		SessionID: "s1", RecordSequence: 1,
		RuleID: &rule.ID, Choice: model.FeedbackAccept,
	}
	learner := New(s)
	require.NoError(t, learner.Apply(ctx, "user-1", event))
	require.NoError(t, learner.Apply(ctx, "user-1", event))

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	// The running average applied exactly once.
	assert.InDelta(t, 1.0, got.SuccessRate, 0.001)
	assert.EqualValues(t, 1, got.UsageCount)
}

func TestApplyCreatesRuleWhenNoneMatched(t *testing.T) {
	s := testutil.SetupTestDB(t)
	ctx := context.Background()

	stageRecord(t, s, "s1", model.StagedRecord{
		Sequence: 1, Date: time.Now(), Description: "Farmácia Central 24h",
		Amount: 12.4, Direction: model.DirectionExpense, Status: model.RecordSuggested,
	})

	event := &model.FeedbackEvent{
		SessionID: "s1", RecordSequence: 1,
		Choice: model.FeedbackOverride, ChosenCategory: "Saúde",
	}
	require.NoError(t, New(s).Apply(ctx, "user-1", event))

	rules, err := s.ListRules(ctx, "user-1", model.RuleClassification, true)
	require.NoError(t, err)

	var synthesized *model.Rule
	for i := range rules {
		if rules[i].Owner == "user-1" {
			synthesized = &rules[i]
			break
		}
	}
	require.NotNil(t, synthesized, "expected a user-scoped rule to be created")
	assert.Equal(t, "Saúde", synthesized.Category)
	assert.Contains(t, synthesized.Keywords, "farmacia")
	assert.Contains(t, synthesized.Keywords, "central")
	assert.NotContains(t, synthesized.Keywords, "24h", "short tokens are dropped")
	assert.Less(t, synthesized.Priority, 50, "user rules evaluate before system defaults")
	assert.False(t, synthesized.IsSystem)

	// Re-submitting identical feedback must not create a second rule.
	require.NoError(t, New(s).Apply(ctx, "user-1", event))
	after, err := s.ListRules(ctx, "user-1", model.RuleClassification, true)
	require.NoError(t, err)
	assert.Len(t, after, len(rules))
}

func TestApplyDuplicateFeedbackDifferentRecords(t *testing.T) {
	s := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &model.ImportSession{
		ID: "s1", Owner: "user-1", Source: model.SourcePaste, State: model.StateUploading,
	}))
	require.NoError(t, s.SaveStagedRecords(ctx, []model.StagedRecord{
		{SessionID: "s1", Sequence: 1, Date: time.Now(), Description: "EDP", Amount: 60, Status: model.RecordSuggested},
		{SessionID: "s1", Sequence: 2, Date: time.Now(), Description: "EDP", Amount: 61, Status: model.RecordSuggested},
	}))

	learner := New(s)
	e1 := &model.FeedbackEvent{SessionID: "s1", RecordSequence: 1, Choice: model.FeedbackOverride, ChosenCategory: "Casa"}
	e2 := &model.FeedbackEvent{SessionID: "s1", RecordSequence: 2, Choice: model.FeedbackOverride, ChosenCategory: "Casa"}
	require.NoError(t, learner.Apply(ctx, "user-1", e1))
	// The second record's rule synthesis collides by name with the first
	// one's; the collision is absorbed, not surfaced.
	require.NoError(t, learner.Apply(ctx, "user-1", e2))
}
