package types

import (
	"encoding/json"
	"regexp"
	"time"
)

// hexColorPattern matches #RGB and #RRGGBB hex color codes.
var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Activity is a user-defined activity template. Its ActivitySchema is a
// JSON Schema document describing the shape of moment data; enrichment
// analyzes the schema and produces a SchemaRender UI hint.
type Activity struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`

	// Name is the activity display name, unique per user.
	Name string `json:"name"`

	// ActivitySchema is a JSON Schema object describing moment data.
	ActivitySchema json.RawMessage `json:"activity_schema"`

	// Icon is an optional icon identifier.
	Icon string `json:"icon,omitempty"`

	// Color is an optional hex color code (#RGB or #RRGGBB).
	Color string `json:"color,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`

	// SchemaRender is the structured result of schema analysis
	// (render type, layout, field groups). Nil until analysis completes.
	SchemaRender *SchemaRender `json:"schema_render,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsValidHexColor reports whether s is a valid hex color code.
// Empty string is considered valid (color not set).
func IsValidHexColor(s string) bool {
	if s == "" {
		return true
	}
	return hexColorPattern.MatchString(s)
}
