// Package llmclient implements the LlmClient capability: a
// single structured-call boundary the core addresses by module name
// (e.g. "reviewer.extract_requirements", "optimizer.consolidate_context").
// Retry and cost tracking belong to the client, not to the core — the
// core only ever sees a result or one of the closed failure kinds below.
package llmclient

import (
	"context"
	"errors"
)

// Failure kinds surfaced to callers.
var (
	// ErrTimeout is returned when a call exceeds its inner deadline.
	ErrTimeout = errors.New("llmclient: timeout")
	// ErrParseFailure is returned when the provider's response does not
	// conform to schemaRef.
	ErrParseFailure = errors.New("llmclient: response failed schema validation")
	// ErrProviderError wraps any other provider-side failure.
	ErrProviderError = errors.New("llmclient: provider error")
	// ErrRateLimited is returned when the provider signals backpressure.
	ErrRateLimited = errors.New("llmclient: rate limited")
)

// LlmClient is the capability the Optimizer and Reviewer call through.
// The core never talks to a provider SDK directly — only through this
// interface — so tests substitute llmclienttest.Fake and production
// wires Anthropic (see client_anthropic.go).
type LlmClient interface {
	// Call invokes moduleName with inputs, validating the response against
	// schemaRef before returning it. schemaRef names a schema
	// registered in the client's SchemaRegistry (SchemaRegistry.Register
	// or RegisterDefaultSchemas); callers that don't
	// need validation may pass an empty schemaRef.
	Call(ctx context.Context, moduleName string, inputs map[string]any, schemaRef string) (map[string]any, error)
}


