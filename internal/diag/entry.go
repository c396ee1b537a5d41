// Package diag ships client log lines to a remote collector, keeps a local
// fallback file for lines that could not be delivered, and implements the
// collector side.
package diag

import (
	"strings"
	"time"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

// LogEntry is the wire body posted to the collector.
type LogEntry struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// normalizeLevel maps an entry level to info, warn, error or debug.
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error", "critical", "fatal":
		return "error"
	case "warn", "warning":
		return "warn"
	case "debug":
		return "debug"
	default:
		return LevelInfo
	}
}

// SpoolEntry is one undelivered log line kept on disk.
type SpoolEntry struct {
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Reason  string    `json:"reason,omitempty"`
}
