package llmclient

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// SchemaRegistry compiles and caches the fixed per-module JSON schemas
// every LlmClient caller's responses must conform to. One registry is
// shared by every LlmClient implementation in a process.
type SchemaRegistry struct {
	compiler *jsonschema.Compiler
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaRegistry constructs an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		compiler: jsonschema.NewCompiler(),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register compiles schemaJSON and stores it under ref. Call once at
// startup per module; Validate then looks ref up by name.
func (r *SchemaRegistry) Register(ref string, schemaJSON []byte) error {
	schema, err := r.compiler.Compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("llmclient: compiling schema %q: %w", ref, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled[ref] = schema
	return nil
}

// Validate checks data (already-decoded JSON) against the schema
// registered under ref. An unregistered ref is treated as "no schema
// constraint" rather than an error, so callers that pass schemaRef=""
// are unaffected.
func (r *SchemaRegistry) Validate(ref string, data map[string]any) error {
	if ref == "" {
		return nil
	}
	r.mu.RLock()
	schema, ok := r.compiled[ref]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: marshaling response for validation: %v", ErrParseFailure, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	result := schema.Validate(instance)
	if !result.IsValid() {
		return fmt.Errorf("%w: schema %q: %v", ErrParseFailure, ref, result.Errors)
	}
	return nil
}


