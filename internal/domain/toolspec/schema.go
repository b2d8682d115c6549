package toolspec

import "encoding/json"

// schemaPropertyNames extracts the top-level "properties" keys from a JSON
// Schema document, used to reject undeclared extra argument keys for
// tools whose schema is not marked open.
func schemaPropertyNames(rawSchema json.RawMessage) (map[string]bool, error) {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(rawSchema, &doc); err != nil {
		return nil, err
	}
	if doc.Properties == nil {
		return nil, nil
	}
	names := make(map[string]bool, len(doc.Properties))
	for k := range doc.Properties {
		names[k] = true
	}
	return names, nil
}
