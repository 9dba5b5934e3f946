package pipeline

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// statementResult is the shape the extraction prompt asks the model to emit,
// one object per extracted statement.
type statementResult struct {
	Statement string `json:"statement" jsonschema:"required,description=A clear concise factual statement from the text"`
	Page      int    `json:"page,omitempty" jsonschema:"description=The page number where this statement appears"`
}

// generateSchema reflects T into a strict JSON schema map.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
