package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// dateLayouts are tried in order when parsing a raw date field.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

// Normalizer converts raw rows into staged records with a canonical
// {date, description, magnitude, direction} tuple.
type Normalizer struct {
	// Now supplies the fallback date for sources that omit one (pasted
	// text). Injected for tests.
	Now func() time.Time
}

// New creates a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize converts one raw record into a staged record. Rows that cannot
// yield a date and amount come back with status FAILED and a reason; they are
// never dropped so the session counters stay honest.
func (n *Normalizer) Normalize(sessionID string, raw service.RawRecord) model.StagedRecord {
	rec := model.StagedRecord{
		SessionID: sessionID,
		Sequence:  raw.Sequence,
		RawData:   raw.Raw,
		Status:    model.RecordPending,
	}

	if raw.DecodeError != "" {
		rec.Status = model.RecordFailed
		rec.ErrorText = fmt.Sprintf("%v: %s", common.ErrDecode, raw.DecodeError)
		return rec
	}

	rec.Description = strings.TrimSpace(raw.Description)

	date, err := n.parseDate(raw.Date)
	if err != nil {
		rec.Status = model.RecordFailed
		rec.ErrorText = fmt.Sprintf("%v: %v", common.ErrValidation, err)
		return rec
	}
	rec.Date = date

	magnitude, direction, err := parseAmount(raw.Amount)
	if err != nil {
		rec.Status = model.RecordFailed
		rec.ErrorText = fmt.Sprintf("%v: %v", common.ErrValidation, err)
		return rec
	}
	rec.Amount = magnitude
	rec.Direction = direction

	if rec.Description == "" {
		rec.Description = "(sem descrição)"
	}

	return rec
}

func (n *Normalizer) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		// Pasted rows routinely omit the date; the paste itself is "today".
		return n.Now().Truncate(24 * time.Hour), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseAmount parses a raw amount into a non-negative magnitude and a
// direction. The stored magnitude is always absolute; an explicit sign
// selects the direction and unsigned amounts default to expense, which the
// classification rules may still override.
func parseAmount(s string) (float64, model.Direction, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, "", fmt.Errorf("missing amount")
	}

	direction := model.DirectionExpense
	switch {
	case strings.HasPrefix(cleaned, "-"):
		cleaned = cleaned[1:]
	case strings.HasPrefix(cleaned, "+"):
		direction = model.DirectionIncome
		cleaned = cleaned[1:]
	}

	cleaned = strings.TrimSpace(strings.Trim(cleaned, "€$£ "))
	cleaned = normalizeSeparators(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, "", fmt.Errorf("unparseable amount %q", s)
	}

	return d.Abs().InexactFloat64(), direction, nil
}

// normalizeSeparators rewrites European-style amounts ("1.234,56") into the
// canonical dot-decimal form decimal.NewFromString expects.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma > lastDot:
		// Comma is the decimal separator; dots are thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	}
	return s
}
