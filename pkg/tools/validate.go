package tools

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput checks a JSON argument payload against the tool's declared
// parameter schema. Malformed input is caught here before a tool ever runs,
// so the model gets a precise error payload to adapt to.
func (d *Definition) ValidateInput(input json.RawMessage) error {
	if d.Parameters == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(d.Parameters)
	if err != nil {
		return errors.Wrapf(err, "marshal schema for tool %s", d.Name)
	}

	payload := input
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return errors.Wrapf(err, "validate input for tool %s", d.Name)
	}
	if result.Valid() {
		return nil
	}

	var descriptions []string
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}
	return errors.Errorf("invalid input for tool %s: %s", d.Name, strings.Join(descriptions, "; "))
}
