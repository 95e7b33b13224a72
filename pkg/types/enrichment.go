package types

import (
	"encoding/json"
	"time"
)

// Metadata keys set by enrichment operations.
const (
	// MetadataTitle is the extracted title (≤50 characters).
	MetadataTitle = "title"

	// MetadataSuggestedPriority is an optional LLM-suggested task priority.
	MetadataSuggestedPriority = "suggested_priority"

	// MetadataSuggestedDueDate is an optional LLM-suggested ISO due date.
	MetadataSuggestedDueDate = "suggested_due_date"
)

// EnrichmentResult is the structured output of a text enrichment call.
// It is persisted verbatim as the entity's enrichment_data.
type EnrichmentResult struct {
	// Content is the post-processed text, formatted as Markdown.
	Content string `json:"content"`

	// Metadata is a free-form map including the extracted title and,
	// for tasks, optional suggested_priority / suggested_due_date.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// TokensUsed is the actual token count reported by the provider.
	TokensUsed int `json:"tokens_used"`

	// ModelName identifies the model that produced the result.
	ModelName string `json:"model_name"`

	// CreatedAt is when the result was produced (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Title returns the extracted title from metadata, or "" if absent.
func (r *EnrichmentResult) Title() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	if t, ok := r.Metadata[MetadataTitle].(string); ok {
		return t
	}
	return ""
}

// TaskCandidate is a single task extracted from note content.
// Relative date phrases are resolved against the caller-supplied "now"
// before the candidate is returned.
type TaskCandidate struct {
	Content  string       `json:"content"`
	DueDate  *time.Time   `json:"due_date,omitempty"`
	Priority TaskPriority `json:"priority"`
	Status   TaskStatus   `json:"status"`
}

// RenderType is the UI rendering strategy suggested for an activity schema.
type RenderType string

// Render type constants.
const (
	RenderForm     RenderType = "form"
	RenderTable    RenderType = "table"
	RenderTimeline RenderType = "timeline"
	RenderCards    RenderType = "cards"
)

// IsValidRenderType checks if the given render type is a known value.
func IsValidRenderType(r RenderType) bool {
	switch r {
	case RenderForm, RenderTable, RenderTimeline, RenderCards:
		return true
	}
	return false
}

// FieldGroup is a named group of schema fields for UI layout.
type FieldGroup struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// SchemaRender is the structured result of activity schema analysis,
// persisted as the activity's schema_render.
type SchemaRender struct {
	RenderType  RenderType             `json:"render_type"`
	Layout      map[string]interface{} `json:"layout,omitempty"`
	FieldGroups []FieldGroup           `json:"field_groups,omitempty"`
}

// ExtractedMoment is a single moment occurrence surfaced during note
// enrichment, named by activity and carrying schema-shaped data.
// The worker validates Data against the named activity's schema before
// persisting a Moment row.
type ExtractedMoment struct {
	ActivityName string          `json:"activity_name"`
	Data         json.RawMessage `json:"data"`
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
}
