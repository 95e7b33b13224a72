package worker

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// validateMomentData checks extracted moment data against the activity's
// JSON Schema. LLM output is only persisted when it conforms.
func validateMomentData(schemaJSON, data json.RawMessage) error {
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(schemaJSON); err != nil {
		return fmt.Errorf("worker: invalid activity schema: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("worker: invalid moment data: %w", err)
	}

	if err := schema.VisitJSON(value); err != nil {
		return fmt.Errorf("worker: moment data does not match schema: %w", err)
	}
	return nil
}
