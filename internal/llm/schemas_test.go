package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robolog/robolog/pkg/types"
)

func TestParseEnrichment_Note(t *testing.T) {
	args := map[string]interface{}{
		"title":   "Groceries",
		"content": "- milk\n- eggs",
		"extra":   "ignored", // extra fields are accepted
	}

	content, metadata, err := parseEnrichment("process_text", args, ContextNoteEnrichment)
	require.NoError(t, err)
	assert.Equal(t, "- milk\n- eggs", content)
	assert.Equal(t, "Groceries", metadata[types.MetadataTitle])
	assert.NotContains(t, metadata, types.MetadataSuggestedPriority)
}

func TestParseEnrichment_MissingRequired(t *testing.T) {
	_, _, err := parseEnrichment("process_text", map[string]interface{}{"content": "x"}, ContextNoteEnrichment)
	assert.Equal(t, KindValidation, KindOf(err))

	_, _, err = parseEnrichment("process_text", map[string]interface{}{"title": 7, "content": "x"}, ContextNoteEnrichment)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestParseEnrichment_TitleTruncated(t *testing.T) {
	long := make([]rune, 80)
	for i := range long {
		long[i] = 'a'
	}
	args := map[string]interface{}{"title": string(long), "content": "x"}

	_, metadata, err := parseEnrichment("process_text", args, ContextNoteEnrichment)
	require.NoError(t, err)
	assert.Len(t, metadata[types.MetadataTitle], 50)
}

func TestParseEnrichment_TaskSuggestions(t *testing.T) {
	args := map[string]interface{}{
		"title":              "Call dentist",
		"content":            "Call the dentist",
		"suggested_priority": "HIGH",
		"suggested_due_date": "2026-09-01",
	}

	_, metadata, err := parseEnrichment("process_text", args, ContextTaskEnrichment)
	require.NoError(t, err)
	assert.Equal(t, "HIGH", metadata[types.MetadataSuggestedPriority])
	assert.Equal(t, "2026-09-01", metadata[types.MetadataSuggestedDueDate])

	args["suggested_priority"] = "SOMEDAY"
	_, _, err = parseEnrichment("process_text", args, ContextTaskEnrichment)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestParseTaskCandidates(t *testing.T) {
	args := map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{"content": "buy milk"},
			map[string]interface{}{"content": "file taxes", "priority": "URGENT", "due_date": "2026-09-15"},
		},
	}

	candidates, err := parseTaskCandidates("extract_tasks", args)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "buy milk", candidates[0].Content)
	assert.Equal(t, types.PriorityMedium, candidates[0].Priority)
	assert.Equal(t, types.TaskStatusTodo, candidates[0].Status)
	assert.Nil(t, candidates[0].DueDate)

	assert.Equal(t, types.PriorityUrgent, candidates[1].Priority)
	require.NotNil(t, candidates[1].DueDate)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), candidates[1].DueDate.UTC())
}

func TestParseTaskCandidates_Empty(t *testing.T) {
	candidates, err := parseTaskCandidates("extract_tasks", map[string]interface{}{"tasks": []interface{}{}})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseTaskCandidates_Invalid(t *testing.T) {
	cases := []map[string]interface{}{
		{},                              // missing tasks
		{"tasks": "not an array"},       // wrong type
		{"tasks": []interface{}{"str"}}, // entry not an object
		{"tasks": []interface{}{map[string]interface{}{"content": "  "}}},             // empty content
		{"tasks": []interface{}{map[string]interface{}{"content": "x", "due_date": "soonish"}}}, // bad date
	}
	for i, args := range cases {
		_, err := parseTaskCandidates("extract_tasks", args)
		assert.Equal(t, KindValidation, KindOf(err), "case %d", i)
	}
}

func TestParseMoments(t *testing.T) {
	args := map[string]interface{}{
		"moments": []interface{}{
			map[string]interface{}{
				"activity_name": "Running",
				"data":          map[string]interface{}{"distance_km": 5.2},
				"timestamp":     "2026-08-25T07:30:00Z",
			},
		},
	}

	moments, err := parseMoments("extract_moments", args)
	require.NoError(t, err)
	require.Len(t, moments, 1)
	assert.Equal(t, "Running", moments[0].ActivityName)
	assert.JSONEq(t, `{"distance_km":5.2}`, string(moments[0].Data))
	require.NotNil(t, moments[0].Timestamp)

	// data must be an object
	bad := map[string]interface{}{
		"moments": []interface{}{map[string]interface{}{"activity_name": "Running", "data": "5k"}},
	}
	_, err = parseMoments("extract_moments", bad)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestParseSchemaRender(t *testing.T) {
	args := map[string]interface{}{
		"render_type": "table",
		"layout":      map[string]interface{}{"columns": float64(2)},
		"field_groups": []interface{}{
			map[string]interface{}{"name": "main", "fields": []interface{}{"distance_km", "duration"}},
		},
	}

	render, err := parseSchemaRender("analyze_activity_schema", args)
	require.NoError(t, err)
	assert.Equal(t, types.RenderTable, render.RenderType)
	assert.Equal(t, float64(2), render.Layout["columns"])
	require.Len(t, render.FieldGroups, 1)
	assert.Equal(t, "main", render.FieldGroups[0].Name)
	assert.Equal(t, []string{"distance_km", "duration"}, render.FieldGroups[0].Fields)
}

func TestParseSchemaRender_Invalid(t *testing.T) {
	_, err := parseSchemaRender("analyze_activity_schema", map[string]interface{}{})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = parseSchemaRender("analyze_activity_schema", map[string]interface{}{"render_type": "pie"})
	assert.Equal(t, KindValidation, KindOf(err))
}
