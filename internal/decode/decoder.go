// Package decode implements the built-in file decoding collaborator for the
// two in-scope sources: CSV files and pasted text. Malformed rows surface as
// decode-error records inside the sequence, never as a call failure.
package decode

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/service"
)

// amountPattern recognizes the trailing amount of a pasted line, with an
// optional sign, currency symbol, and either separator style.
var amountPattern = regexp.MustCompile(`^[-+]?[€$£]?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?$|^[-+]?[€$£]?\d+(?:[.,]\d{1,2})?$`)

// datePattern recognizes a leading date field of a pasted line.
var datePattern = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}$|^\d{2}[-/.]\d{2}[-/.]\d{4}$`)

// Decoder turns raw upload or paste bytes into ordered raw records.
type Decoder struct{}

// New creates a Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode dispatches on the declared source kind. The returned error is only
// non-nil for unusable input as a whole (unknown kind); individual bad rows
// come back inside the sequence with DecodeError set.
func (d *Decoder) Decode(_ context.Context, source model.SourceKind, data []byte) ([]service.RawRecord, error) {
	switch source {
	case model.SourceFile:
		return decodeCSV(data), nil
	case model.SourcePaste:
		return decodePaste(data), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", source)
	}
}

// decodeCSV reads date, description, amount columns, positionally or via a
// header row naming them (English or Portuguese).
func decodeCSV(data []byte) []service.RawRecord {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	dateCol, descCol, amountCol := 0, 1, 2
	var records []service.RawRecord
	seq := 0
	first := true

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}

		if first {
			first = false
			if cols, ok := headerColumns(row); ok {
				dateCol, descCol, amountCol = cols[0], cols[1], cols[2]
				continue
			}
		}

		seq++
		raw := strings.Join(row, ",")

		if err != nil {
			records = append(records, service.RawRecord{
				Sequence:    seq,
				Raw:         raw,
				DecodeError: err.Error(),
			})
			continue
		}

		maxCol := dateCol
		for _, c := range []int{descCol, amountCol} {
			if c > maxCol {
				maxCol = c
			}
		}
		if len(row) <= maxCol {
			records = append(records, service.RawRecord{
				Sequence:    seq,
				Raw:         raw,
				DecodeError: fmt.Sprintf("expected at least %d columns, got %d", maxCol+1, len(row)),
			})
			continue
		}

		records = append(records, service.RawRecord{
			Sequence:    seq,
			Date:        strings.TrimSpace(row[dateCol]),
			Description: strings.TrimSpace(row[descCol]),
			Amount:      strings.TrimSpace(row[amountCol]),
			Raw:         raw,
		})
	}

	return records
}

// headerColumns maps a header row to (date, description, amount) column
// indexes if it names all three.
func headerColumns(row []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	for i, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "date", "data":
			cols[0] = i
		case "description", "descricao", "descrição", "desc":
			cols[1] = i
		case "amount", "montante", "valor":
			cols[2] = i
		}
	}
	return cols, cols[0] >= 0 && cols[1] >= 0 && cols[2] >= 0
}

// decodePaste parses free-form pasted lines of the shape
// "[date] description amount". Blank lines are skipped; a line without a
// trailing amount is a decode-error record.
func decodePaste(data []byte) []service.RawRecord {
	var records []service.RawRecord
	seq := 0

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}

		seq++
		fields := strings.Fields(line)

		last := fields[len(fields)-1]
		if len(fields) < 2 || !amountPattern.MatchString(last) {
			records = append(records, service.RawRecord{
				Sequence:    seq,
				Raw:         line,
				DecodeError: "no trailing amount",
			})
			continue
		}

		rec := service.RawRecord{
			Sequence: seq,
			Amount:   last,
			Raw:      line,
		}

		rest := fields[:len(fields)-1]
		if len(rest) > 1 && datePattern.MatchString(rest[0]) {
			rec.Date = rest[0]
			rest = rest[1:]
		}
		rec.Description = strings.Join(rest, " ")

		records = append(records, rec)
	}

	return records
}
