package main

// Default limits for CLI commands.
const (
	DefaultListLimit    = 50
	DefaultAuditLimit   = 100
	DefaultSuggestLimit = 5
)

// Valid audit output formats.
var validFormats = []string{"text", "json", "csv", "markdown"}
