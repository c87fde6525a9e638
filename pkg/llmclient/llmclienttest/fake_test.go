package llmclienttest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_EnqueueAndConsumeInOrder(t *testing.T) {
	f := New()
	f.Enqueue("reviewer.extract_requirements", Response{Output: map[string]any{"n": 1}})
	f.Enqueue("reviewer.extract_requirements", Response{Output: map[string]any{"n": 2}})

	out1, err := f.Call(context.Background(), "reviewer.extract_requirements", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, out1["n"])

	out2, err := f.Call(context.Background(), "reviewer.extract_requirements", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, out2["n"])

	assert.Len(t, f.Calls, 2)
}

func TestFake_UnqueuedModuleErrors(t *testing.T) {
	f := New()
	_, err := f.Call(context.Background(), "optimizer.consolidate_context", nil, "")
	assert.Error(t, err)
}


