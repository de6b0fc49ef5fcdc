package appointments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Accepted timestamp layouts. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// storedPrecision is the resolution of timestamptz columns.
const storedPrecision = time.Microsecond

func parseID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, validationError(field + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, validationError("invalid " + field)
	}
	return id, nil
}

// parseOptionalID returns uuid.Nil for a blank value.
func parseOptionalID(field, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, nil
	}
	return parseID(field, raw)
}

func parseTimestamp(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, validationError(field + " is required")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC().Truncate(storedPrecision), nil
		}
	}
	return time.Time{}, validationError("invalid " + field + ": expected an ISO 8601 timestamp")
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, validationError("invalid " + field + ": expected YYYY-MM-DD")
	}
	return t, nil
}

func normalizeNotes(raw string) *string {
	notes := strings.TrimSpace(raw)
	if notes == "" {
		return nil
	}
	return &notes
}
