package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	readingsOnce      sync.Once
	readingsSchema    *jsonschema.Schema
	readingsSchemaErr error
)

// compiledReadingsSchema compiles the readings schema exactly once. The
// schema is fixed for the process lifetime, so per-request recompilation
// would be pure overhead.
func compiledReadingsSchema() (*jsonschema.Schema, error) {
	readingsOnce.Do(func() {
		b, err := json.Marshal(BuildReadingsJSONSchema())
		if err != nil {
			readingsSchemaErr = fmt.Errorf("marshal readings schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("readings.json", bytes.NewReader(b)); err != nil {
			readingsSchemaErr = fmt.Errorf("add readings schema: %w", err)
			return
		}
		readingsSchema, readingsSchemaErr = compiler.Compile("readings.json")
	})
	return readingsSchema, readingsSchemaErr
}

// ValidateReadings checks a model reply against the meter-readings schema.
// A nil return guarantees the reply carries startReading and endReading with
// a string date and numeric value each, and nothing else.
func ValidateReadings(data []byte) error {
	schema, err := compiledReadingsSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match readings schema: %w", err)
	}
	return nil
}
