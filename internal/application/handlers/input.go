package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// readInput reads a batch file and picks its format. An empty or "auto"
// format is detected from the file extension.
func readInput(filePath, format string) ([]byte, parsers.Format, error) {
	var (
		f   parsers.Format
		err error
	)
	if format == "" || format == "auto" {
		f, err = parsers.ForFile(filePath)
	} else {
		f, err = parsers.ParseFormat(format)
	}
	if err != nil {
		return nil, "", err
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("accessing file: %w", err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("path is a directory, not a file: %s", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	return data, f, nil
}
