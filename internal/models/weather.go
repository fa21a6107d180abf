package models

import (
	"encoding/json"
	"time"
)

// WeatherRecord is the upstream API payload, passed through without interpretation.
type WeatherRecord = json.RawMessage

// CacheEntry is the persisted form of a cached lookup. The city is the storage key
// and is not part of the serialized body.
type CacheEntry struct {
	Timestamp string        `json:"timestamp"`
	Weather   WeatherRecord `json:"weather"`
}

// LogEntry is one audit record written after a successful upstream fetch.
type LogEntry struct {
	City      string
	Timestamp string
	ObjectURL string
}

// FormatTimestamp renders t as the ISO-8601 string stored in cache and log entries.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// naiveLayout matches timestamps written without a zone designator; they are UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// ParseTimestamp parses RFC 3339 timestamps and the zone-less form, treating the
// latter as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(naiveLayout, s, time.UTC)
}
