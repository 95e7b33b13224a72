// Package llm provides the provider-agnostic LLM port used by the
// enrichment workers, together with the rate limiter, retry helper, and
// error taxonomy that surround every provider call.
//
// Rate-limit and cost concerns live entirely inside this package: callers
// see only a result or a classified error.
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robolog/robolog/pkg/types"
)

// ContextType selects the enrichment flavor for ProcessText.
type ContextType string

// Context types for ProcessText.
const (
	ContextNoteEnrichment ContextType = "note_enrichment"
	ContextTaskEnrichment ContextType = "task_enrichment"
)

// HealthStatus is the result of a provider health check.
type HealthStatus struct {
	OK       bool
	Latency  time.Duration
	Provider string
}

// Port is the provider-agnostic capability set the workers program against.
type Port interface {
	// ProcessText enriches free text: extracts a title (at most 50
	// characters) into metadata, reformats the body as Markdown, and for
	// task enrichment optionally suggests a priority and due date.
	ProcessText(ctx context.Context, text string, contextType ContextType) (*types.EnrichmentResult, error)

	// ExtractTasks surfaces actionable items from note text. Relative
	// date phrases are resolved against now. An empty result is legal
	// and common.
	ExtractTasks(ctx context.Context, noteText string, now time.Time) ([]types.TaskCandidate, error)

	// ExtractMoments surfaces occurrences of the given activities in the
	// note text. Returned data is shaped after each activity's schema;
	// the caller validates it before persisting.
	ExtractMoments(ctx context.Context, noteText string, activities []*types.Activity, now time.Time) ([]types.ExtractedMoment, error)

	// AnalyzeActivitySchema suggests a UI rendering strategy for an
	// activity's JSON Schema.
	AnalyzeActivitySchema(ctx context.Context, schema json.RawMessage) (*types.SchemaRender, error)

	// HealthCheck verifies provider reachability.
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
