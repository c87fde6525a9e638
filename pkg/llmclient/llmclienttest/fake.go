// Package llmclienttest provides an in-memory fake of the LlmClient
// capability: a fake, not a mocking library, mirroring
// pkg/storage/storagetest.
package llmclienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
)

// Fake is a scriptable LlmClient: tests enqueue per-module responses (or
// errors) and assert on the calls received.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Response
	Calls     []Call
}

// Response is one canned result for a module, consumed in FIFO order.
type Response struct {
	Output map[string]any
	Err    error
}

// Call records one invocation for test assertions.
type Call struct {
	Module    string
	Inputs    map[string]any
	SchemaRef string
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{responses: make(map[string][]Response)}
}

// Enqueue appends a response to be returned the next time moduleName is
// called.
func (f *Fake) Enqueue(moduleName string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[moduleName] = append(f.responses[moduleName], resp)
}

// Call implements llmclient.LlmClient.
func (f *Fake) Call(_ context.Context, moduleName string, inputs map[string]any, schemaRef string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, Call{Module: moduleName, Inputs: inputs, SchemaRef: schemaRef})

	queue := f.responses[moduleName]
	if len(queue) == 0 {
		return nil, fmt.Errorf("llmclienttest: no response queued for module %q", moduleName)
	}
	resp := queue[0]
	f.responses[moduleName] = queue[1:]
	return resp.Output, resp.Err
}

var _ llmclient.LlmClient = (*Fake)(nil)


