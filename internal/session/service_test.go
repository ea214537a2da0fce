package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/decode"
	"github.com/PL7092/MyMoney-sub001/internal/dedupe"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/oracle"
	"github.com/PL7092/MyMoney-sub001/internal/service"
	"github.com/PL7092/MyMoney-sub001/internal/testutil"
)

func newService(t *testing.T, oracleClient service.Oracle) *Service {
	t.Helper()

	store := testutil.SetupTestDB(t)
	svc := New(store, decode.New(), store, oracleClient, dedupe.Config{})
	t.Cleanup(svc.Close)
	return svc
}

// waitForTerminal polls until the session leaves the running states.
func waitForTerminal(t *testing.T, svc *Service, id string) *model.ImportSession {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := svc.Status(context.Background(), id)
		require.NoError(t, err)
		if sess.State == model.StateCompleted || sess.State == model.StateError {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session did not reach a reviewable state in time")
	return nil
}

func TestPasteImportEndToEnd(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	data := []byte("Supermercado Continente 45.67\nSalario 2500")
	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, data)
	require.NoError(t, err)
	assert.Equal(t, model.StateUploading, sess.State)

	final := waitForTerminal(t, svc, sess.ID)
	require.Equal(t, model.StateCompleted, final.State)
	assert.Equal(t, 2, final.Counters.TotalRows)
	assert.Equal(t, 2, final.Counters.ProcessedRows)
	assert.Equal(t, 2, final.Counters.SuccessfulRows)
	assert.Equal(t, 0, final.Counters.ErrorRows)

	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	groceries := records[0]
	assert.Equal(t, model.RecordSuggested, groceries.Status)
	assert.Equal(t, model.DirectionExpense, groceries.Direction)
	assert.Equal(t, "Alimentação", groceries.SuggestedCategory)
	assert.GreaterOrEqual(t, groceries.Confidence, 0.9)
	assert.InDelta(t, 45.67, groceries.Amount, 0.001)
	require.NotNil(t, groceries.MatchedRuleID)

	salary := records[1]
	assert.Equal(t, model.RecordSuggested, salary.Status)
	assert.Equal(t, model.DirectionIncome, salary.Direction)
	assert.Equal(t, "Salário", salary.SuggestedCategory)
	assert.InDelta(t, 2500.0, salary.Amount, 0.001)
}

func TestCountersStayConsistentWithBadRows(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	data := []byte("Supermercado Continente 45.67\nlinha sem montante\nGalp gasolina 30.00")
	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, data)
	require.NoError(t, err)

	final := waitForTerminal(t, svc, sess.ID)
	require.Equal(t, model.StateCompleted, final.State)
	assert.Equal(t, 3, final.Counters.TotalRows)
	assert.Equal(t, 2, final.Counters.SuccessfulRows)
	assert.Equal(t, 1, final.Counters.ErrorRows)
	assert.Equal(t, final.Counters.SuccessfulRows+final.Counters.ErrorRows,
		final.Counters.ProcessedRows)

	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.RecordFailed, records[1].Status)
	assert.NotEmpty(t, records[1].ErrorText)
}

func TestEmptyPasteCompletesWithZeroRows(t *testing.T) {
	svc := newService(t, nil)

	sess, err := svc.Create(context.Background(), "user-1", model.SourcePaste, []byte("\n\n"))
	require.NoError(t, err)

	final := waitForTerminal(t, svc, sess.ID)
	assert.Equal(t, model.StateCompleted, final.State)
	assert.Equal(t, 0, final.Counters.TotalRows)
	assert.Equal(t, 0, final.Counters.ProcessedRows)
}

func TestDeleteRemovesSessionAndRecords(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Supermercado Continente 45.67"))
	require.NoError(t, err)
	waitForTerminal(t, svc, sess.ID)

	require.NoError(t, svc.Delete(ctx, sess.ID))

	_, err = svc.Status(ctx, sess.ID)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
	_, err = svc.Records(ctx, sess.ID)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestSubmitFeedbackRequiresCompletedSession(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	// A session created directly in storage stays Uploading forever.
	store := testutil.SetupTestDB(t)
	direct := New(store, decode.New(), store, nil, dedupe.Config{})
	t.Cleanup(direct.Close)
	require.NoError(t, store.CreateSession(ctx, &model.ImportSession{
		ID: "stuck", Owner: "user-1", Source: model.SourcePaste, State: model.StateUploading,
	}))

	err := direct.SubmitFeedback(ctx, "stuck", 1, model.FeedbackAccept, "", false)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	err = svc.SubmitFeedback(ctx, "missing", 1, model.FeedbackAccept, "", false)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestSubmitFeedbackCreditsMatchedRule(t *testing.T) {
	store := testutil.SetupTestDB(t)
	svc := New(store, decode.New(), store, nil, dedupe.Config{})
	t.Cleanup(svc.Close)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Supermercado Continente 45.67"))
	require.NoError(t, err)
	final := waitForTerminal(t, svc, sess.ID)
	require.Equal(t, model.StateCompleted, final.State)

	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, records[0].MatchedRuleID)
	ruleID := *records[0].MatchedRuleID

	// The usage bump from classification is fire-and-forget; wait for it so
	// the success-rate arithmetic below is deterministic.
	require.Eventually(t, func() bool {
		rule, err := store.GetRule(ctx, ruleID)
		return err == nil && rule.UsageCount >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.SubmitFeedback(ctx, sess.ID, records[0].Sequence,
		model.FeedbackAccept, "", false))

	rec, err := store.GetStagedRecord(ctx, sess.ID, records[0].Sequence)
	require.NoError(t, err)
	assert.Equal(t, model.RecordAccepted, rec.Status)

	// 0.3*1.0 + 0.7*0.0: one accepted use folded into a fresh rate.
	rule, err := store.GetRule(ctx, ruleID)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, rule.SuccessRate, 1e-9)

	// The same verdict again is absorbed without another stats update.
	require.NoError(t, svc.SubmitFeedback(ctx, sess.ID, records[0].Sequence,
		model.FeedbackAccept, "", false))
	rule, err = store.GetRule(ctx, ruleID)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, rule.SuccessRate, 1e-9)
}

func TestSubmitFeedbackValidatesChoice(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Supermercado Continente 45.67"))
	require.NoError(t, err)
	waitForTerminal(t, svc, sess.ID)

	err = svc.SubmitFeedback(ctx, sess.ID, 1, model.FeedbackChoice("maybe"), "", false)
	assert.ErrorIs(t, err, common.ErrValidation)

	err = svc.SubmitFeedback(ctx, sess.ID, 1, model.FeedbackOverride, "", false)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestOracleRefinesLowConfidenceSuggestions(t *testing.T) {
	mock := &oracle.Mock{Suggestion: service.OracleSuggestion{Category: "Saúde", Confidence: 0.8}}
	svc := newService(t, mock)
	ctx := context.Background()

	// No seeded rule knows this merchant, so the engine yields confidence 0.
	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Clinica Dentaria Sorriso 80.00"))
	require.NoError(t, err)
	final := waitForTerminal(t, svc, sess.ID)
	require.Equal(t, model.StateCompleted, final.State)

	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Saúde", records[0].SuggestedCategory)
	assert.Equal(t, 0.8, records[0].Confidence)
	assert.Nil(t, records[0].MatchedRuleID)

	// The request carries the known category vocabulary from the visible
	// classification rules.
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Categories, "Alimentação")
	assert.Contains(t, calls[0].Categories, "Salário")
}

func TestOracleNeverOverridesConfidentRules(t *testing.T) {
	mock := &oracle.Mock{Suggestion: service.OracleSuggestion{Category: "Outros", Confidence: 0.99}}
	svc := newService(t, mock)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Supermercado Continente 45.67"))
	require.NoError(t, err)
	final := waitForTerminal(t, svc, sess.ID)
	require.Equal(t, model.StateCompleted, final.State)

	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alimentação", records[0].SuggestedCategory)
	assert.Empty(t, mock.Calls())
}

func TestOracleOutageKeepsLocalVerdict(t *testing.T) {
	mock := &oracle.Mock{Unavailable: true}
	svc := newService(t, mock)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", model.SourcePaste, []byte("Clinica Dentaria Sorriso 80.00"))
	require.NoError(t, err)
	final := waitForTerminal(t, svc, sess.ID)

	require.Equal(t, model.StateCompleted, final.State)
	records, err := svc.Records(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, records[0].SuggestedCategory)
	assert.Equal(t, 0.0, records[0].Confidence)
}

func TestCreateRejectsInvalidSource(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.Create(context.Background(), "user-1", model.SourceKind("email"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
}
