package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvRow is one data row with header-based column lookup.
type csvRow struct {
	line     int
	record   []string
	colIndex map[string]int
}

// get safely retrieves a trimmed column value.
func (r csvRow) get(col string) string {
	if idx, ok := r.colIndex[col]; ok && idx < len(r.record) {
		return strings.TrimSpace(r.record[idx])
	}
	return ""
}

func (r csvRow) int64(col string) (int64, error) {
	s := r.get(col)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s value %q: %w", r.line, col, s, err)
	}
	return v, nil
}

// readCSV reads a header row, checks required columns, and converts each
// data row with convert.
func readCSV[T any](data []byte, required []string, convert func(csvRow) (T, error)) ([]T, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	colIndex, err := readHeader(reader, required)
	if err != nil {
		return nil, err
	}

	var result []T
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		item, err := convert(csvRow{line: lineNum, record: record, colIndex: colIndex})
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	return result, nil
}

// readHeader reads and validates the CSV header row.
func readHeader(reader *csv.Reader, required []string) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range required {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}
