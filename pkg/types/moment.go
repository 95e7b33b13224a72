package types

import (
	"encoding/json"
	"time"
)

// Moment is a derived entity representing one occurrence of an activity,
// extracted from a note during enrichment. Data conforms to the owning
// activity's schema and is validated before persistence.
type Moment struct {
	ID         string `json:"id"`
	ActivityID int64  `json:"activity_id"`
	UserID     string `json:"user_id"`

	// NoteID backlinks to the note this moment was extracted from.
	NoteID int64 `json:"note_id"`

	// Data is arbitrary JSON matching the activity's schema.
	Data json.RawMessage `json:"data"`

	// Timestamp is when the moment occurred.
	Timestamp time.Time `json:"timestamp"`

	CreatedAt time.Time `json:"created_at"`
}
