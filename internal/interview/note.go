package interview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jobchaja-interviews/internal/common/validation"
	"jobchaja-interviews/internal/models"
)

const noteSchemaJSON = `{
	"type": "object",
	"properties": {
		"method":        {"enum": ["ONLINE", "OFFLINE", "", null]},
		"slot1":         {"type": ["string", "null"]},
		"slot2":         {"type": ["string", "null"]},
		"meetingLink":   {"type": ["string", "null"]},
		"address":       {"type": ["string", "null"]},
		"directions":    {"type": ["string", "null"]},
		"whatToBring":   {"type": ["string", "null"]},
		"selectedSlot":  {"enum": ["slot1", "slot2", null]},
		"cancelledBy":   {"enum": ["EMPLOYER", "APPLICANT", null]},
		"cancelReason":  {"type": ["string", "null"]},
		"resultMessage": {"type": ["string", "null"]}
	}
}`

var noteSchema = validation.MustCompileSchema(noteSchemaJSON)

// DecodeNote parses the raw note text of an application record. Empty,
// malformed or schema-violating text yields nil: "no scheduling data yet".
func DecodeNote(text string) *models.InterviewNote {
	raw := []byte(strings.TrimSpace(text))
	if len(raw) == 0 {
		return nil
	}

	if result := noteSchema.ValidateJSON(raw); !result.Valid {
		return nil
	}

	var note models.InterviewNote
	if err := json.Unmarshal(raw, &note); err != nil {
		return nil
	}
	return &note
}

// EncodeNote serializes every field of note, nulls included.
func EncodeNote(note *models.InterviewNote) (string, error) {
	if note == nil {
		return "", fmt.Errorf("cannot encode a nil interview note")
	}
	b, err := json.Marshal(note)
	if err != nil {
		return "", fmt.Errorf("failed to marshal interview note: %w", err)
	}
	return string(b), nil
}

// Timestamp layouts accepted for slots, interview dates and creation times.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching layout. Timestamps without
// a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}
