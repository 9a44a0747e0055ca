package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// ImportError represents an error for a specific row of an input file.
type ImportError struct {
	Line    int    `json:"line,omitempty"`  // Line number (1-indexed, 0 if unknown)
	Field   string `json:"field,omitempty"` // Which field has the error
	Value   string `json:"value,omitempty"` // The invalid value
	Message string `json:"message"`         // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

var observedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ConvertRecords validates raw rows and converts the valid ones.
func ConvertRecords(raw []parsers.RawRecord) ([]entities.DependentRecord, []ImportError) {
	records := make([]entities.DependentRecord, 0, len(raw))
	var errs []ImportError

	for i := range raw {
		row := &raw[i]
		line := row.LineNum
		if line == 0 {
			line = i + 1
		}

		rec, err := convertRecord(row, line)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		records = append(records, rec)
	}

	return records, errs
}

func convertRecord(row *parsers.RawRecord, line int) (entities.DependentRecord, *ImportError) {
	kind, err := entities.ParseRecordKind(row.Kind)
	if err != nil {
		return entities.DependentRecord{}, &ImportError{Line: line, Field: "kind", Value: row.Kind, Message: err.Error()}
	}
	if strings.TrimSpace(row.ExternalID) == "" {
		return entities.DependentRecord{}, &ImportError{Line: line, Field: "external_id", Message: "missing required field: external_id"}
	}

	source := kind.DefaultSource()
	if row.Source != "" {
		source, err = entities.ParseSource(row.Source)
		if err != nil {
			return entities.DependentRecord{}, &ImportError{Line: line, Field: "source", Value: row.Source, Message: err.Error()}
		}
	}

	var observed time.Time
	if row.ObservedAt != "" {
		observed, err = parseObservedAt(row.ObservedAt)
		if err != nil {
			return entities.DependentRecord{}, &ImportError{Line: line, Field: "observed_at", Value: row.ObservedAt, Message: err.Error()}
		}
	}

	return entities.DependentRecord{
		Kind:       kind,
		ExternalID: strings.TrimSpace(row.ExternalID),
		RawName:    row.RawName,
		Source:     source,
		ObservedAt: observed,
	}, nil
}

func parseObservedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range observedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid observed_at %q (use RFC 3339 or YYYY-MM-DD)", s)
}

// ConvertMergePairs validates plan rows.
func ConvertMergePairs(raw []parsers.RawMergePair) ([]entities.MergePair, []ImportError) {
	pairs := make([]entities.MergePair, 0, len(raw))
	var errs []ImportError

	for i, row := range raw {
		line := row.LineNum
		if line == 0 {
			line = i + 1
		}
		switch {
		case row.Keep <= 0:
			errs = append(errs, ImportError{Line: line, Field: "keep", Message: "keep must be a positive member ID"})
		case row.Absorb <= 0:
			errs = append(errs, ImportError{Line: line, Field: "absorb", Message: "absorb must be a positive member ID"})
		case row.Keep == row.Absorb:
			errs = append(errs, ImportError{Line: line, Message: fmt.Sprintf("keep and absorb are both %d", row.Keep)})
		default:
			pairs = append(pairs, entities.MergePair{KeepID: row.Keep, AbsorbID: row.Absorb})
		}
	}

	return pairs, errs
}
