// Package reviewer implements the Reviewer (C6): five structured LLM
// operations plus the seven-gate quality check that together decide
// whether an Executor's artifacts satisfy a work item.
package reviewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// Schema refs registered with the shared llmclient.SchemaRegistry at
// startup; each module's schema is fixed, not negotiated per call.
const (
	SchemaExtractRequirements = "reviewer.extract_requirements"
	SchemaValidateIntent      = "reviewer.validate_intent"
	SchemaVerifyCompleteness  = "reviewer.verify_completeness"
	SchemaVerifyCorrectness   = "reviewer.verify_correctness"
	SchemaGenerateGuidance    = "reviewer.generate_guidance"
)

// ErrReviewerUnavailable is returned when every retry of an LLM-backed
// operation fails to parse; the caller treats this as "verdict unknown".
var ErrReviewerUnavailable = errors.New("reviewer: operation failed after retry")

// Reviewer is C6.
type Reviewer struct {
	llm     llmclient.LlmClient
	scanner antiPatternScanner
}

// New constructs a Reviewer backed by llm. A nil llm is accepted for
// tests that only exercise the non-LLM gates (anti-patterns, tests
// present, docs present).
func New(llm llmclient.LlmClient) *Reviewer {
	return &Reviewer{llm: llm, scanner: defaultAntiPatternScanner()}
}

// callWithRetry retries once with a strict-schema reminder on parse
// failure, then returns a hard error. ErrParseFailure is the only
// retried failure kind; any other error (timeout, provider error, rate
// limit) is not retried here — the caller re-queues instead.
func (r *Reviewer) callWithRetry(ctx context.Context, moduleName string, inputs map[string]any, schemaRef string) (map[string]any, error) {
	out, err := r.llm.Call(ctx, moduleName, inputs, schemaRef)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, llmclient.ErrParseFailure) {
		return nil, err
	}

	retryInputs := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		retryInputs[k] = v
	}
	retryInputs["_reminder"] = "Respond with strict JSON matching the schema exactly. No prose."

	out, err = r.llm.Call(ctx, moduleName, retryInputs, schemaRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", moduleName, ErrReviewerUnavailable, err)
	}
	return out, nil
}

// ExtractRequirements implements extract_requirements.
func (r *Reviewer) ExtractRequirements(ctx context.Context, intent string, executionContext string) ([]models.Requirement, error) {
	out, err := r.callWithRetry(ctx, SchemaExtractRequirements, map[string]any{
		"intent":  intent,
		"context": executionContext,
	}, SchemaExtractRequirements)
	if err != nil {
		return nil, err
	}
	return parseRequirements(out["requirements"]), nil
}

func parseRequirements(v any) []models.Requirement {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.Requirement, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		req := models.Requirement{
			ID:        stringField(m, "id"),
			Text:      stringField(m, "text"),
			Component: stringField(m, "component"),
			Assertion: stringField(m, "assertion"),
		}
		if cs, ok := m["constraints"].([]any); ok {
			for _, c := range cs {
				if s, ok := c.(string); ok {
					req.Constraints = append(req.Constraints, s)
				}
			}
		}
		out = append(out, req)
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// ValidateIntent implements validate_intent.
func (r *Reviewer) ValidateIntent(ctx context.Context, intent, implementation, executionContext string) (bool, []string, error) {
	out, err := r.callWithRetry(ctx, SchemaValidateIntent, map[string]any{
		"intent":            intent,
		"implementation":    implementation,
		"execution_context": executionContext,
	}, SchemaValidateIntent)
	if err != nil {
		return false, nil, err
	}
	satisfied, _ := out["satisfied"].(bool)
	return satisfied, stringSliceField(out, "issues"), nil
}

// VerifyCompleteness implements verify_completeness.
func (r *Reviewer) VerifyCompleteness(ctx context.Context, requirements []models.Requirement, implementation, executionContext string) (bool, []string, error) {
	out, err := r.callWithRetry(ctx, SchemaVerifyCompleteness, map[string]any{
		"requirements":      requirements,
		"implementation":    implementation,
		"execution_context": executionContext,
	}, SchemaVerifyCompleteness)
	if err != nil {
		return false, nil, err
	}
	complete, _ := out["complete"].(bool)
	return complete, stringSliceField(out, "issues"), nil
}

// VerifyCorrectness implements verify_correctness.
func (r *Reviewer) VerifyCorrectness(ctx context.Context, implementation, executionContext string) (bool, []string, error) {
	out, err := r.callWithRetry(ctx, SchemaVerifyCorrectness, map[string]any{
		"implementation":    implementation,
		"execution_context": executionContext,
	}, SchemaVerifyCorrectness)
	if err != nil {
		return false, nil, err
	}
	correct, _ := out["correct"].(bool)
	return correct, stringSliceField(out, "issues"), nil
}

// GenerateGuidance implements generate_guidance.
func (r *Reviewer) GenerateGuidance(ctx context.Context, issues []string, executionContext string) (models.Guidance, error) {
	out, err := r.callWithRetry(ctx, SchemaGenerateGuidance, map[string]any{
		"issues":  issues,
		"context": executionContext,
	}, SchemaGenerateGuidance)
	if err != nil {
		return models.Guidance{}, err
	}
	guidance := models.Guidance{
		Summary: stringField(out, "summary"),
		Actions: stringSliceField(out, "actions"),
	}
	for _, g := range stringSliceField(out, "blocking_gates") {
		guidance.BlockingGates = append(guidance.BlockingGates, models.QualityGate(g))
	}
	return guidance, nil
}

func stringSliceField(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}


