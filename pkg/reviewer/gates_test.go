package reviewer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient/llmclienttest"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

func enqueuePassingGates(llm *llmclienttest.Fake) {
	llm.Enqueue(SchemaValidateIntent, llmclienttest.Response{Output: map[string]any{"satisfied": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCompleteness, llmclienttest.Response{Output: map[string]any{"complete": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCorrectness, llmclienttest.Response{Output: map[string]any{"correct": true, "issues": []any{}}})
}

func TestReview_AllGatesPassYieldsOverallPass(t *testing.T) {
	llm := llmclienttest.New()
	enqueuePassingGates(llm)
	r := New(llm)

	in := ReviewInput{
		Intent:           "add an adder function",
		ExecutionContext: "ctx",
		Requirements:     []models.Requirement{{ID: "R1", Text: "add function"}},
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "// Add returns a+b.\nfunc Add(a, b int) int { return a + b }"},
			{Kind: "file", Path: "add_test.go", Content: "func TestAdd(t *testing.T) {}"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, verdict.Pass)
	assert.Empty(t, verdict.FailedGates)
	assert.Len(t, verdict.GateResults, len(models.AllQualityGates))
}

func TestReview_AntiPatternMarkerFailsGate(t *testing.T) {
	llm := llmclienttest.New()
	enqueuePassingGates(llm)
	r := New(llm)

	in := ReviewInput{
		Intent:           "add function",
		ExecutionContext: "ctx",
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "// TODO: implement\nfunc Add(a, b int) int { return 0 }"},
			{Kind: "file", Path: "add_test.go", Content: "func TestAdd(t *testing.T) {}"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	assert.Contains(t, verdict.FailedGates, models.GateNoAntiPatterns)
}

func TestReview_MissingTestFileFailsTestsGate(t *testing.T) {
	llm := llmclienttest.New()
	enqueuePassingGates(llm)
	r := New(llm)

	in := ReviewInput{
		Intent:           "add function",
		ExecutionContext: "ctx",
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "// Add returns a+b.\nfunc Add(a, b int) int { return a + b }"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	assert.Contains(t, verdict.FailedGates, models.GateTestsPresent)
}

func TestReview_MissingDocCommentFailsDocumentationGate(t *testing.T) {
	llm := llmclienttest.New()
	enqueuePassingGates(llm)
	r := New(llm)

	in := ReviewInput{
		Intent:           "add function",
		ExecutionContext: "ctx",
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "func Add(a, b int) int { return a + b }"},
			{Kind: "file", Path: "add_test.go", Content: "func TestAdd(t *testing.T) {}"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, verdict.FailedGates, models.GateDocumentationPresent)
}

func TestReview_CorrectnessIssuesSplitBetweenDanglingAndConstraintGates(t *testing.T) {
	llm := llmclienttest.New()
	llm.Enqueue(SchemaValidateIntent, llmclienttest.Response{Output: map[string]any{"satisfied": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCompleteness, llmclienttest.Response{Output: map[string]any{"complete": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCorrectness, llmclienttest.Response{Output: map[string]any{
		"correct": false,
		"issues":  []any{"dangling reference to deleted helper", "constraint violated: max line length"},
	}})
	r := New(llm)

	in := ReviewInput{
		Intent:           "add function",
		ExecutionContext: "ctx",
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "// Add.\nfunc Add(a, b int) int { return a + b }"},
			{Kind: "file", Path: "add_test.go", Content: "func TestAdd(t *testing.T) {}"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, verdict.FailedGates, models.GateNoDanglingReferences)
	assert.Contains(t, verdict.FailedGates, models.GateConstraintsHold)
}

func TestReview_UnaddressedTypedHoleFailsCompletenessGate(t *testing.T) {
	llm := llmclienttest.New()
	llm.Enqueue(SchemaValidateIntent, llmclienttest.Response{Output: map[string]any{"satisfied": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCompleteness, llmclienttest.Response{Output: map[string]any{"complete": true, "issues": []any{}}})
	llm.Enqueue(SchemaVerifyCorrectness, llmclienttest.Response{Output: map[string]any{"correct": true, "issues": []any{}}})
	r := New(llm)

	in := ReviewInput{
		Intent:           "add function",
		ExecutionContext: "ctx",
		TypedHoles:       []string{"<RateLimiter>"},
		Artifacts: []models.Artifact{
			{Kind: "file", Path: "add.go", Content: "// Add.\nfunc Add(a, b int) int { return a + b }"},
			{Kind: "file", Path: "add_test.go", Content: "func TestAdd(t *testing.T) {}"},
		},
	}

	verdict, err := r.Review(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, verdict.FailedGates, models.GateRequirementsComplete)
}


