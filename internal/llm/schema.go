package llm

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/xeipuuv/gojsonschema"
)

// Schema is a named JSON schema handed to the provider as a strict
// response_format and enforced again client-side on the reply.
type Schema struct {
	Name string

	definition map[string]interface{}
	compiled   *gojsonschema.Schema
}

// MustSchema compiles a JSON schema document, panicking on malformed input.
// Schemas are package-level constants, so failure is a programming error.
func MustSchema(name, document string) Schema {
	var definition map[string]interface{}
	if err := sonic.Unmarshal([]byte(document), &definition); err != nil {
		panic(fmt.Sprintf("llm: schema %s: %v", name, err))
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		panic(fmt.Sprintf("llm: schema %s: %v", name, err))
	}

	return Schema{Name: name, definition: definition, compiled: compiled}
}

// Definition returns the decoded schema document for the wire request.
func (s Schema) Definition() map[string]interface{} { return s.definition }

// Validate checks a response document against the schema.
func (s Schema) Validate(document string) error {
	result, err := s.compiled.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, result.Errors())
	}
	return nil
}
