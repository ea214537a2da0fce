// Package session drives the import pipeline: it owns session creation and
// deletion, runs the stages on a per-session goroutine, and enforces the
// state machine through the guarded storage writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/dedupe"
	"github.com/PL7092/MyMoney-sub001/internal/learner"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/normalize"
	"github.com/PL7092/MyMoney-sub001/internal/rules"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// oracleThreshold is the engine confidence below which the oracle is asked
// for a second opinion. The oracle's answer replaces the engine's only when
// it is strictly more confident.
const oracleThreshold = 0.7

// Service creates sessions and runs their pipeline stages. Stages execute on
// a per-session goroutine so the creating request returns as soon as the
// session is durably Uploading.
type Service struct {
	store      service.Storage
	decoder    service.Decoder
	normalizer *normalize.Normalizer
	engine     *rules.Engine
	detector   *dedupe.Detector
	oracle     service.Oracle
	learner    *learner.Learner

	mu      sync.Mutex
	runners map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a pipeline service. The oracle may be nil; classification then
// relies on the rule engine alone. Zero fields in the dedupe config take the
// documented defaults.
func New(store service.Storage, decoder service.Decoder, ledger service.LedgerStore, oracle service.Oracle, dedupeCfg dedupe.Config) *Service {
	return &Service{
		store:      store,
		decoder:    decoder,
		normalizer: normalize.New(),
		engine:     rules.NewEngine(store),
		detector:   dedupe.New(ledger, dedupeCfg),
		oracle:     oracle,
		learner:    learner.New(store),
		runners:    make(map[string]context.CancelFunc),
	}
}

// Create records a new session in Uploading and starts its pipeline in the
// background. It returns once the session is durable; the caller follows
// progress through Status.
func (s *Service) Create(ctx context.Context, owner string, source model.SourceKind, data []byte) (*model.ImportSession, error) {
	sess := &model.ImportSession{
		ID:     uuid.NewString(),
		Owner:  owner,
		Source: source,
		State:  model.StateUploading,
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	// The runner outlives the creating request; only Delete or Close
	// cancel it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.runners[sess.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(sess.ID)
		s.run(runCtx, sess.ID, sess.Owner, data)
	}()

	return sess, nil
}

// Status returns the session as last written by the pipeline. It never
// blocks on stage execution.
func (s *Service) Status(ctx context.Context, id string) (*model.ImportSession, error) {
	return s.store.GetSession(ctx, id)
}

// Records lists the staged records of a session in sequence order.
func (s *Service) Records(ctx context.Context, id string) ([]model.StagedRecord, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListStagedRecords(ctx, id)
}

// Delete cancels any in-flight pipeline work and removes the session with
// its staged records. A runner that already passed its last guarded write
// detects the deletion on the next one and aborts.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if cancel, ok := s.runners[id]; ok {
		cancel()
	}
	s.mu.Unlock()
	return s.store.DeleteSession(ctx, id)
}

// SubmitFeedback records the user's verdict on one staged record and hands
// it to the learner. The matched rule is credited from the record itself;
// repeat submissions for the same record change nothing.
func (s *Service) SubmitFeedback(ctx context.Context, sessionID string, sequence int, choice model.FeedbackChoice, chosenCategory string, createRule bool) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != model.StateCompleted {
		return fmt.Errorf("%w: session %s is %s, feedback requires %s",
			common.ErrInvalidTransition, sessionID, sess.State, model.StateCompleted)
	}
	if choice != model.FeedbackAccept && choice != model.FeedbackOverride {
		return fmt.Errorf("%w: invalid feedback choice %q", common.ErrValidation, choice)
	}
	if choice == model.FeedbackOverride && chosenCategory == "" {
		return fmt.Errorf("%w: override feedback requires a category", common.ErrValidation)
	}

	rec, err := s.store.GetStagedRecord(ctx, sessionID, sequence)
	if err != nil {
		return err
	}

	event := &model.FeedbackEvent{
		SessionID:      sessionID,
		RecordSequence: sequence,
		Choice:         choice,
		ChosenCategory: chosenCategory,
		CreateRule:     createRule,
		RuleID:         rec.MatchedRuleID,
	}
	return s.learner.Apply(ctx, sess.Owner, event)
}

// Close cancels every in-flight runner and waits for them to finish.
func (s *Service) Close() {
	s.mu.Lock()
	for _, cancel := range s.runners {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) release(id string) {
	s.mu.Lock()
	if cancel, ok := s.runners[id]; ok {
		cancel()
		delete(s.runners, id)
	}
	s.mu.Unlock()
}

// run executes the pipeline stages for one session. Per-row faults are
// recorded on the rows; an unexpected stage fault moves the session to Error
// with the counters committed so far. A guarded write that reports
// ErrSessionNotFound or ErrInvalidTransition means the session was deleted
// or marked terminal concurrently, and the runner stops without writing
// anything further.
func (s *Service) run(ctx context.Context, id, owner string, data []byte) {
	logger := slog.With("session_id", id)

	var counters model.SessionCounters
	state := model.StateUploading

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline stage panicked", "panic", r)
			s.fail(id, state, counters, fmt.Sprintf("internal fault: %v", r))
		}
	}()

	advance := func(to model.SessionState) bool {
		if err := s.store.AdvanceSession(ctx, id, state, to, counters, ""); err != nil {
			if aborted(err) {
				logger.Info("Session gone or terminal, runner stopping", "stage", state)
				return false
			}
			logger.Error("Failed to advance session", "from", state, "to", to, "error", err)
			s.fail(id, state, counters, err.Error())
			return false
		}
		state = to
		logger.Info("Session advanced", "stage", to,
			"total", counters.TotalRows, "processed", counters.ProcessedRows,
			"successful", counters.SuccessfulRows, "errors", counters.ErrorRows)
		return true
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		logger.Error("Session vanished before parsing", "error", err)
		return
	}

	if !advance(model.StateParsing) {
		return
	}

	raws, err := s.decoder.Decode(ctx, sess.Source, data)
	if err != nil {
		s.fail(id, state, counters, err.Error())
		return
	}
	counters.TotalRows = len(raws)

	if !advance(model.StateProcessing) {
		return
	}

	records, err := s.classifyAll(ctx, owner, id, raws, &counters)
	if err != nil {
		s.fail(id, state, counters, err.Error())
		return
	}
	if err := s.store.SaveStagedRecords(ctx, records); err != nil {
		s.fail(id, state, counters, err.Error())
		return
	}

	if !advance(model.StateEnriching) {
		return
	}

	if err := s.enrich(ctx, owner, records); err != nil {
		s.fail(id, state, counters, err.Error())
		return
	}
	if err := s.store.UpdateStagedRecords(ctx, records); err != nil {
		s.fail(id, state, counters, err.Error())
		return
	}

	if advance(model.StateCompleted) {
		common.LogInfo("Import session ready for review", common.Fields{
			"session_id": id,
			"rows":       counters.TotalRows,
			"failed":     counters.ErrorRows,
		})
	}
}

// classifyAll normalizes each raw row and asks the rule engine for a
// suggestion, accumulating the counters as it goes.
func (s *Service) classifyAll(ctx context.Context, owner, sessionID string, raws []service.RawRecord, counters *model.SessionCounters) ([]model.StagedRecord, error) {
	records := make([]model.StagedRecord, 0, len(raws))
	for _, raw := range raws {
		rec := s.normalizer.Normalize(sessionID, raw)

		if rec.Status != model.RecordFailed {
			suggestion, err := s.engine.Classify(ctx, owner, &rec)
			if err != nil {
				return nil, err
			}
			if suggestion.Confidence > 0 {
				rec.Status = model.RecordSuggested
				rec.MatchedRuleID = suggestion.RuleID
				rec.SuggestedCategory = suggestion.Category
				rec.SuggestedAccount = suggestion.Account
				rec.Confidence = suggestion.Confidence
				if suggestion.Direction != nil {
					rec.Direction = *suggestion.Direction
				}
			}
		}

		counters.ProcessedRows++
		if rec.Status == model.RecordFailed {
			counters.ErrorRows++
		} else {
			counters.SuccessfulRows++
		}
		records = append(records, rec)
	}
	return records, nil
}

// enrich annotates duplicates and consults the oracle for low-confidence
// suggestions. Oracle failures downgrade to the engine's verdict.
func (s *Service) enrich(ctx context.Context, owner string, records []model.StagedRecord) error {
	if err := s.detector.Annotate(ctx, owner, records); err != nil {
		return err
	}

	if s.oracle == nil {
		return nil
	}
	// The category vocabulary is loaded once, and only when some record
	// actually consults the oracle.
	var categories []string
	loaded := false
	for i := range records {
		rec := &records[i]
		if rec.Status == model.RecordFailed || rec.Confidence >= oracleThreshold {
			continue
		}
		if !loaded {
			var err error
			categories, err = s.knownCategories(ctx, owner)
			if err != nil {
				return err
			}
			loaded = true
		}
		suggestion, err := s.oracle.Classify(ctx, service.OracleRequest{
			Description: rec.Description,
			Direction:   rec.Direction,
			Categories:  categories,
			Amount:      rec.Amount,
		})
		if err != nil {
			if !errors.Is(err, common.ErrOracleUnavailable) {
				return err
			}
			slog.Debug("Oracle unavailable, keeping local verdict",
				"session_id", rec.SessionID, "sequence", rec.Sequence)
			continue
		}
		if suggestion.Confidence > rec.Confidence && suggestion.Category != "" {
			rec.Status = model.RecordSuggested
			rec.MatchedRuleID = nil
			rec.SuggestedCategory = suggestion.Category
			rec.Confidence = suggestion.Confidence
		}
	}
	return nil
}

// knownCategories collects the distinct categories of the owner's visible
// classification rules, giving the oracle a vocabulary to choose from.
func (s *Service) knownCategories(ctx context.Context, owner string) ([]string, error) {
	visible, err := s.store.ListRules(ctx, owner, model.RuleClassification, true)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(visible))
	var categories []string
	for _, rule := range visible {
		if rule.Category == "" || seen[rule.Category] {
			continue
		}
		seen[rule.Category] = true
		categories = append(categories, rule.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

// fail moves the session to Error, preserving the counters committed so
// far. A session that was deleted or finished concurrently stays untouched.
func (s *Service) fail(id string, from model.SessionState, counters model.SessionCounters, errorText string) {
	common.LogError(errors.New(errorText), "Import session failed", common.Fields{
		"session_id": id,
		"stage":      string(from),
		"processed":  counters.ProcessedRows,
	})

	// Detached context: the runner's own context may already be canceled.
	err := s.store.AdvanceSession(context.Background(), id, from, model.StateError, counters, errorText)
	if err != nil && !aborted(err) {
		slog.Error("Failed to mark session as errored", "session_id", id, "error", err)
	}
}

func aborted(err error) bool {
	return errors.Is(err, common.ErrSessionNotFound) || errors.Is(err, common.ErrInvalidTransition)
}
