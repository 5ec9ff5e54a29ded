package model

import "errors"

var (
	// ErrDecode marks a raw log line that is not a JSON object.
	ErrDecode = errors.New("malformed trace line")

	// ErrSourceUnavailable is returned when the backing log cannot be
	// located or read. Callers treat it as "no history yet".
	ErrSourceUnavailable = errors.New("trace source unavailable")
)

// ScanStats summarizes one pass over the backing store.
type ScanStats struct {
	Files   int `json:"files"`
	Lines   int `json:"lines"`
	Decoded int `json:"decoded"`
	Skipped int `json:"skipped"`
}
