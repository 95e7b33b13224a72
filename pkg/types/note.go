package types

import "time"

// Note is a user-authored note, the primary input for the sequential
// enrichment pipeline. Notes are persisted synchronously in PENDING status
// and enriched asynchronously: title extraction, Markdown re-formatting,
// child task extraction, and moment extraction.
type Note struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`

	// Content is the raw user text. Never empty for a persistable note.
	Content string `json:"content"`

	// Attachments is an optional list of attachment references.
	// Carried through but not interpreted by the enrichment core.
	Attachments []string `json:"attachments,omitempty"`

	// ProcessingStatus tracks the enrichment lifecycle.
	ProcessingStatus ProcessingStatus `json:"processing_status"`

	// EnrichmentData holds the structured enrichment result
	// (title, formatted Markdown body, token usage, model name).
	// Nil until enrichment completes.
	EnrichmentData *EnrichmentResult `json:"enrichment_data,omitempty"`

	// ProcessedAt is the UTC timestamp of the last successful completion.
	// Set atomically with EnrichmentData; nil for FAILED entities.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
