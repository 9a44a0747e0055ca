// Package parsers reads record batches, alias lists, and merge plans from
// JSON, YAML, and CSV files.
package parsers

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an input file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat parses a format name.
// Supported formats: "json", "yaml", "csv".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format %q (valid: json, yaml, csv)", s)
	}
}

// ForFile returns the format matching a file extension.
func ForFile(filename string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot detect format of %s (use --format)", filename)
	}
	return ParseFormat(ext)
}

// RawRecord is a dependent record read from a batch file, before validation.
type RawRecord struct {
	Kind       string `json:"kind" yaml:"kind"`
	ExternalID string `json:"external_id" yaml:"external_id"`
	RawName    string `json:"raw_name" yaml:"raw_name"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
	ObservedAt string `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
	LineNum    int    `json:"-" yaml:"-"` // Line number in source file (set by parser)
}

// RawAlias maps a historical raw name to a member's display name.
type RawAlias struct {
	RawName     string `json:"raw_name" yaml:"raw_name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"` // Empty applies to every source
	LineNum     int    `json:"-" yaml:"-"`
}

// RawMergePair is an operator-confirmed merge read from a plan file.
type RawMergePair struct {
	Keep    int64 `json:"keep" yaml:"keep"`
	Absorb  int64 `json:"absorb" yaml:"absorb"`
	LineNum int   `json:"-" yaml:"-"`
}

// ParseRecords reads dependent records.
// CSV columns: kind, external_id, raw_name, source, observed_at.
func ParseRecords(data []byte, format Format) ([]RawRecord, error) {
	switch format {
	case FormatJSON:
		return decodeJSON[RawRecord](data, func(r *RawRecord, line int) { r.LineNum = line })
	case FormatYAML:
		return decodeYAML[RawRecord](data, func(r *RawRecord, line int) { r.LineNum = line })
	case FormatCSV:
		return readCSV(data, []string{"kind", "external_id", "raw_name"}, func(row csvRow) (RawRecord, error) {
			return RawRecord{
				Kind:       row.get("kind"),
				ExternalID: row.get("external_id"),
				RawName:    row.get("raw_name"),
				Source:     row.get("source"),
				ObservedAt: row.get("observed_at"),
				LineNum:    row.line,
			}, nil
		})
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ParseAliases reads an alias list.
// CSV columns: raw_name, display_name, source.
func ParseAliases(data []byte, format Format) ([]RawAlias, error) {
	switch format {
	case FormatJSON:
		return decodeJSON[RawAlias](data, func(a *RawAlias, line int) { a.LineNum = line })
	case FormatYAML:
		return decodeYAML[RawAlias](data, func(a *RawAlias, line int) { a.LineNum = line })
	case FormatCSV:
		return readCSV(data, []string{"raw_name", "display_name"}, func(row csvRow) (RawAlias, error) {
			return RawAlias{
				RawName:     row.get("raw_name"),
				DisplayName: row.get("display_name"),
				Source:      row.get("source"),
				LineNum:     row.line,
			}, nil
		})
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ParseMergePairs reads a merge plan.
// CSV columns: keep, absorb.
func ParseMergePairs(data []byte, format Format) ([]RawMergePair, error) {
	switch format {
	case FormatJSON:
		return decodeJSON[RawMergePair](data, func(p *RawMergePair, line int) { p.LineNum = line })
	case FormatYAML:
		return decodeYAML[RawMergePair](data, func(p *RawMergePair, line int) { p.LineNum = line })
	case FormatCSV:
		return readCSV(data, []string{"keep", "absorb"}, func(row csvRow) (RawMergePair, error) {
			keep, err := row.int64("keep")
			if err != nil {
				return RawMergePair{}, err
			}
			absorb, err := row.int64("absorb")
			if err != nil {
				return RawMergePair{}, err
			}
			return RawMergePair{Keep: keep, Absorb: absorb, LineNum: row.line}, nil
		})
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
