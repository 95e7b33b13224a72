package llm

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/robolog/robolog/pkg/types"
)

// Tool schemas for the provider's function-call interface. Each operation
// declares one tool and forces the model to call it, so the response is a
// single structured argument object instead of free text.

// toolProperty is a JSON Schema fragment used inside tool input schemas.
type toolProperty struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
	MaxLength   int                     `json:"maxLength,omitempty"`
	Items       *toolProperty           `json:"items,omitempty"`
	Properties  map[string]toolProperty `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
}

// toolSchema is a single declared tool.
type toolSchema struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema toolProperty `json:"input_schema"`
}

var priorityEnum = []string{"LOW", "MEDIUM", "HIGH", "URGENT"}

var enrichNoteTool = toolSchema{
	Name:        "enrich_note",
	Description: "Record the enriched form of a personal note.",
	InputSchema: toolProperty{
		Type: "object",
		Properties: map[string]toolProperty{
			"title":   {Type: "string", Description: "Concise title, at most 50 characters.", MaxLength: 50},
			"content": {Type: "string", Description: "The note body reformatted as Markdown."},
		},
		Required: []string{"title", "content"},
	},
}

var enrichTaskTool = toolSchema{
	Name:        "enrich_task",
	Description: "Record the enriched form of a personal task.",
	InputSchema: toolProperty{
		Type: "object",
		Properties: map[string]toolProperty{
			"title":              {Type: "string", Description: "Concise title, at most 50 characters.", MaxLength: 50},
			"content":            {Type: "string", Description: "The task body reformatted as Markdown."},
			"suggested_priority": {Type: "string", Enum: priorityEnum},
			"suggested_due_date": {Type: "string", Description: "ISO date, e.g. 2026-03-01."},
		},
		Required: []string{"title", "content"},
	},
}

var extractTasksTool = toolSchema{
	Name:        "extract_tasks",
	Description: "Record the actionable items found in a note. An empty list is valid.",
	InputSchema: toolProperty{
		Type: "object",
		Properties: map[string]toolProperty{
			"tasks": {
				Type: "array",
				Items: &toolProperty{
					Type: "object",
					Properties: map[string]toolProperty{
						"content":  {Type: "string"},
						"due_date": {Type: "string", Description: "ISO date resolved from any relative phrase."},
						"priority": {Type: "string", Enum: priorityEnum},
					},
					Required: []string{"content"},
				},
			},
		},
		Required: []string{"tasks"},
	},
}

var extractMomentsTool = toolSchema{
	Name:        "extract_moments",
	Description: "Record occurrences of the listed activities found in a note. An empty list is valid.",
	InputSchema: toolProperty{
		Type: "object",
		Properties: map[string]toolProperty{
			"moments": {
				Type: "array",
				Items: &toolProperty{
					Type: "object",
					Properties: map[string]toolProperty{
						"activity_name": {Type: "string"},
						"data":          {Type: "object", Description: "Fields matching the activity's schema."},
						"timestamp":     {Type: "string", Description: "ISO timestamp of the occurrence."},
					},
					Required: []string{"activity_name", "data"},
				},
			},
		},
		Required: []string{"moments"},
	},
}

var analyzeSchemaTool = toolSchema{
	Name:        "analyze_activity_schema",
	Description: "Record the suggested rendering strategy for an activity schema.",
	InputSchema: toolProperty{
		Type: "object",
		Properties: map[string]toolProperty{
			"render_type": {Type: "string", Enum: []string{"form", "table", "timeline", "cards"}},
			"layout":      {Type: "object"},
			"field_groups": {
				Type: "array",
				Items: &toolProperty{
					Type: "object",
					Properties: map[string]toolProperty{
						"name":   {Type: "string"},
						"fields": {Type: "array", Items: &toolProperty{Type: "string"}},
					},
					Required: []string{"name"},
				},
			},
		},
		Required: []string{"render_type"},
	},
}

// Argument validation. The provider is forced to call the declared tool,
// but the argument object still has to be checked: a missing or ill-typed
// required field is a validation error, extra fields are accepted.

func requireString(op string, args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", validationErrorf(op, "missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", validationErrorf(op, "field %q is not a string", key)
	}
	return s, nil
}

func optionalString(op string, args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", validationErrorf(op, "field %q is not a string", key)
	}
	return s, nil
}

func requireArray(op string, args map[string]interface{}, key string) ([]interface{}, error) {
	v, ok := args[key]
	if !ok {
		return nil, validationErrorf(op, "missing required field %q", key)
	}
	a, ok := v.([]interface{})
	if !ok {
		return nil, validationErrorf(op, "field %q is not an array", key)
	}
	return a, nil
}

func requireObject(op string, args map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := args[key]
	if !ok {
		return nil, validationErrorf(op, "missing required field %q", key)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, validationErrorf(op, "field %q is not an object", key)
	}
	return m, nil
}

// truncateTitle enforces the 50-character title bound.
func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > 50 {
		return string(runes[:50])
	}
	return title
}

// parseDueDate accepts ISO dates and RFC 3339 timestamps.
func parseDueDate(op, value string) (*time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, validationErrorf(op, "unparseable date %q", value)
}

// parseEnrichment turns enrich_note / enrich_task arguments into content
// plus a metadata map.
func parseEnrichment(op string, args map[string]interface{}, contextType ContextType) (string, map[string]interface{}, error) {
	title, err := requireString(op, args, "title")
	if err != nil {
		return "", nil, err
	}
	content, err := requireString(op, args, "content")
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{
		types.MetadataTitle: truncateTitle(title),
	}

	if contextType == ContextTaskEnrichment {
		priority, err := optionalString(op, args, "suggested_priority")
		if err != nil {
			return "", nil, err
		}
		if priority != "" {
			if !types.IsValidTaskPriority(types.TaskPriority(priority)) {
				return "", nil, validationErrorf(op, "invalid suggested_priority %q", priority)
			}
			metadata[types.MetadataSuggestedPriority] = priority
		}

		dueDate, err := optionalString(op, args, "suggested_due_date")
		if err != nil {
			return "", nil, err
		}
		if dueDate != "" {
			if _, err := parseDueDate(op, dueDate); err != nil {
				return "", nil, err
			}
			metadata[types.MetadataSuggestedDueDate] = dueDate
		}
	}

	return content, metadata, nil
}

// parseTaskCandidates turns extract_tasks arguments into candidates.
func parseTaskCandidates(op string, args map[string]interface{}) ([]types.TaskCandidate, error) {
	items, err := requireArray(op, args, "tasks")
	if err != nil {
		return nil, err
	}

	candidates := make([]types.TaskCandidate, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(op, "tasks entry is not an object")
		}

		content, err := requireString(op, entry, "content")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(content) == "" {
			return nil, validationErrorf(op, "tasks entry has empty content")
		}

		candidate := types.TaskCandidate{
			Content:  content,
			Priority: types.PriorityMedium,
			Status:   types.TaskStatusTodo,
		}

		if priority, err := optionalString(op, entry, "priority"); err != nil {
			return nil, err
		} else if priority != "" {
			if !types.IsValidTaskPriority(types.TaskPriority(priority)) {
				return nil, validationErrorf(op, "invalid priority %q", priority)
			}
			candidate.Priority = types.TaskPriority(priority)
		}

		if dueDate, err := optionalString(op, entry, "due_date"); err != nil {
			return nil, err
		} else if dueDate != "" {
			t, err := parseDueDate(op, dueDate)
			if err != nil {
				return nil, err
			}
			candidate.DueDate = t
		}

		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// parseMoments turns extract_moments arguments into extracted moments.
func parseMoments(op string, args map[string]interface{}) ([]types.ExtractedMoment, error) {
	items, err := requireArray(op, args, "moments")
	if err != nil {
		return nil, err
	}

	moments := make([]types.ExtractedMoment, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(op, "moments entry is not an object")
		}

		name, err := requireString(op, entry, "activity_name")
		if err != nil {
			return nil, err
		}
		data, err := requireObject(op, entry, "data")
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, validationErrorf(op, "unmarshalable moment data: %v", err)
		}

		moment := types.ExtractedMoment{ActivityName: name, Data: raw}

		if ts, err := optionalString(op, entry, "timestamp"); err != nil {
			return nil, err
		} else if ts != "" {
			t, err := parseDueDate(op, ts)
			if err != nil {
				return nil, err
			}
			moment.Timestamp = t
		}

		moments = append(moments, moment)
	}
	return moments, nil
}

// parseSchemaRender turns analyze_activity_schema arguments into a render.
func parseSchemaRender(op string, args map[string]interface{}) (*types.SchemaRender, error) {
	renderType, err := requireString(op, args, "render_type")
	if err != nil {
		return nil, err
	}
	if !types.IsValidRenderType(types.RenderType(renderType)) {
		return nil, validationErrorf(op, "invalid render_type %q", renderType)
	}

	render := &types.SchemaRender{RenderType: types.RenderType(renderType)}

	if v, ok := args["layout"]; ok && v != nil {
		layout, ok := v.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(op, "field %q is not an object", "layout")
		}
		render.Layout = layout
	}

	if v, ok := args["field_groups"]; ok && v != nil {
		groups, ok := v.([]interface{})
		if !ok {
			return nil, validationErrorf(op, "field %q is not an array", "field_groups")
		}
		for _, g := range groups {
			entry, ok := g.(map[string]interface{})
			if !ok {
				return nil, validationErrorf(op, "field_groups entry is not an object")
			}
			name, err := requireString(op, entry, "name")
			if err != nil {
				return nil, err
			}
			group := types.FieldGroup{Name: name}
			if v, ok := entry["fields"]; ok && v != nil {
				fields, ok := v.([]interface{})
				if !ok {
					return nil, validationErrorf(op, "field_groups fields is not an array")
				}
				for _, f := range fields {
					s, ok := f.(string)
					if !ok {
						return nil, validationErrorf(op, "field_groups fields entry is not a string")
					}
					group.Fields = append(group.Fields, s)
				}
			}
			render.FieldGroups = append(render.FieldGroups, group)
		}
	}

	return render, nil
}
