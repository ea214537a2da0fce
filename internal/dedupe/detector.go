// Package dedupe flags likely duplicate transactions by comparing candidates
// against finalized ledger entries and other records in the same session.
package dedupe

import (
	"context"
	"fmt"
	"math"

	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/normalize"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// amountEpsilon absorbs float rounding when comparing magnitudes against the
// configured tolerance.
const amountEpsilon = 1e-9

// Config holds the duplicate detection thresholds.
type Config struct {
	WindowDays          int
	AmountTolerance     float64
	SimilarityThreshold float64
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		WindowDays:          3,
		AmountTolerance:     0.01,
		SimilarityThreshold: 0.5,
	}
}

// Detector annotates staged records with duplicate flags. It never mutates
// or deletes anything outside the records handed to it.
type Detector struct {
	ledger service.LedgerStore
	cfg    Config
}

// New creates a detector reading finalized history from the given ledger.
func New(ledger service.LedgerStore, cfg Config) *Detector {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = DefaultConfig().AmountTolerance
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	return &Detector{ledger: ledger, cfg: cfg}
}

// Annotate sets IsDuplicate and DuplicateConfidence on each record in place.
// A record is flagged when a same-owner ledger entry or an earlier record in
// the session has an amount within tolerance, a date within the window, and
// description similarity above the threshold. The two signals combine by
// maximum; the ledger entry is the canonical side of any tie, so within a
// session only the later record of a pair is flagged.
func (d *Detector) Annotate(ctx context.Context, owner string, records []model.StagedRecord) error {
	tokens := make([]map[string]struct{}, len(records))
	for i := range records {
		tokens[i] = normalize.TokenSet(normalize.Tokenize(records[i].Description))
	}

	for i := range records {
		rec := &records[i]
		if rec.Status == model.RecordFailed {
			continue
		}

		ledgerConf, err := d.ledgerSignal(ctx, owner, rec, tokens[i])
		if err != nil {
			return fmt.Errorf("failed to search ledger for duplicates: %w", err)
		}

		sessionConf := d.sessionSignal(records[:i], tokens[:i], rec, tokens[i])

		confidence := math.Max(ledgerConf, sessionConf)
		if confidence > d.cfg.SimilarityThreshold {
			rec.IsDuplicate = true
			rec.DuplicateConfidence = confidence
		}
	}
	return nil
}

func (d *Detector) ledgerSignal(ctx context.Context, owner string, rec *model.StagedRecord, recTokens map[string]struct{}) (float64, error) {
	entries, err := d.ledger.SearchEntries(ctx, owner, rec.Date, d.cfg.WindowDays)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, entry := range entries {
		if !d.amountsClose(rec.Amount, entry.Amount) {
			continue
		}
		if !d.datesClose(rec, entry) {
			continue
		}
		sim := Jaccard(recTokens, normalize.TokenSet(normalize.Tokenize(entry.Description)))
		if sim > best {
			best = sim
		}
	}
	return best, nil
}

func (d *Detector) sessionSignal(earlier []model.StagedRecord, earlierTokens []map[string]struct{}, rec *model.StagedRecord, recTokens map[string]struct{}) float64 {
	best := 0.0
	for i := range earlier {
		other := &earlier[i]
		if other.Status == model.RecordFailed {
			continue
		}
		if !d.amountsClose(rec.Amount, other.Amount) {
			continue
		}
		days := math.Abs(rec.Date.Sub(other.Date).Hours()) / 24
		if days > float64(d.cfg.WindowDays) {
			continue
		}
		sim := Jaccard(recTokens, earlierTokens[i])
		if sim > best {
			best = sim
		}
	}
	return best
}

func (d *Detector) amountsClose(a, b float64) bool {
	return math.Abs(a-b) <= d.cfg.AmountTolerance+amountEpsilon
}

func (d *Detector) datesClose(rec *model.StagedRecord, entry model.LedgerEntry) bool {
	days := math.Abs(rec.Date.Sub(entry.Date).Hours()) / 24
	return days <= float64(d.cfg.WindowDays)
}

// Jaccard computes token-set overlap: |A∩B| / |A∪B|. It is symmetric, so the
// ordering of a comparison never changes the result.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
