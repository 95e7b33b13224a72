package llm

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robolog/robolog/pkg/types"
)

// TestModelName is the model identifier the test provider reports.
const TestModelName = "test-model"

// TestPort is a deterministic in-memory Port for exercising the pipeline
// end-to-end without network.
//
// Defaults: ProcessText returns the input upper-cased with the first 50
// characters as title and tokens_used = 10; ExtractTasks returns one
// candidate per "TODO:" line, resolving "tomorrow" against the supplied
// now; ExtractMoments reports each activity whose name appears in the
// text; AnalyzeActivitySchema returns a form render. The canned fields
// override the defaults when set, and Err forces every call to fail.
type TestPort struct {
	mu sync.Mutex

	// Err, when set, is returned by every capability call.
	Err error

	// Canned responses. A nil field keeps the deterministic default.
	Tasks   []types.TaskCandidate
	Moments []types.ExtractedMoment
	Render  *types.SchemaRender

	// MomentData, when set, is used as the data payload for default
	// moment extraction, keyed by activity name.
	MomentData map[string]json.RawMessage

	calls map[string]int
}

// NewTestPort creates a test provider.
func NewTestPort() *TestPort {
	return &TestPort{calls: make(map[string]int)}
}

// Calls returns how many times the named operation ran.
func (p *TestPort) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *TestPort) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[op]++
	return p.Err
}

// ProcessText returns the text upper-cased with a first-50-chars title.
func (p *TestPort) ProcessText(ctx context.Context, text string, contextType ContextType) (*types.EnrichmentResult, error) {
	if err := p.record("process_text"); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		types.MetadataTitle: truncateTitle(text),
	}
	return &types.EnrichmentResult{
		Content:    strings.ToUpper(text),
		Metadata:   metadata,
		TokensUsed: 10,
		ModelName:  TestModelName,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// ExtractTasks returns one candidate per "TODO:" line.
func (p *TestPort) ExtractTasks(ctx context.Context, noteText string, now time.Time) ([]types.TaskCandidate, error) {
	if err := p.record("extract_tasks"); err != nil {
		return nil, err
	}
	if p.Tasks != nil {
		return p.Tasks, nil
	}

	var candidates []types.TaskCandidate
	for _, line := range strings.Split(noteText, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "TODO:")
		if !ok {
			continue
		}
		content := strings.TrimSpace(rest)
		if content == "" {
			continue
		}

		candidate := types.TaskCandidate{
			Content:  content,
			Priority: types.PriorityMedium,
			Status:   types.TaskStatusTodo,
		}
		if strings.Contains(strings.ToLower(content), "tomorrow") {
			due := now.UTC().Add(24 * time.Hour)
			candidate.DueDate = &due
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// ExtractMoments reports each activity whose name appears in the text.
func (p *TestPort) ExtractMoments(ctx context.Context, noteText string, activities []*types.Activity, now time.Time) ([]types.ExtractedMoment, error) {
	if err := p.record("extract_moments"); err != nil {
		return nil, err
	}
	if p.Moments != nil {
		return p.Moments, nil
	}

	lower := strings.ToLower(noteText)
	var moments []types.ExtractedMoment
	for _, a := range activities {
		if !strings.Contains(lower, strings.ToLower(a.Name)) {
			continue
		}
		data := json.RawMessage(`{}`)
		if d, ok := p.MomentData[a.Name]; ok {
			data = d
		}
		ts := now.UTC()
		moments = append(moments, types.ExtractedMoment{
			ActivityName: a.Name,
			Data:         data,
			Timestamp:    &ts,
		})
	}
	return moments, nil
}

// AnalyzeActivitySchema returns a single-group form render.
func (p *TestPort) AnalyzeActivitySchema(ctx context.Context, schema json.RawMessage) (*types.SchemaRender, error) {
	if err := p.record("analyze_activity_schema"); err != nil {
		return nil, err
	}
	if p.Render != nil {
		return p.Render, nil
	}

	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	render := &types.SchemaRender{RenderType: types.RenderForm}
	if err := json.Unmarshal(schema, &parsed); err == nil && len(parsed.Properties) > 0 {
		group := types.FieldGroup{Name: "details"}
		for field := range parsed.Properties {
			group.Fields = append(group.Fields, field)
		}
		sort.Strings(group.Fields)
		render.FieldGroups = []types.FieldGroup{group}
	}
	return render, nil
}

// HealthCheck always succeeds.
func (p *TestPort) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if err := p.record("health_check"); err != nil {
		return &HealthStatus{Provider: TestModelName}, err
	}
	return &HealthStatus{OK: true, Provider: TestModelName}, nil
}

// Compile-time assertion.
var _ Port = (*TestPort)(nil)
