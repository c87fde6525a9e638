package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// consolidate produces the narrative, key issues, and strategic guidance
// fields of a ContextPackage, shaped by mode: detailed carries full
// memory content, summary trims to titles plus a short excerpt, and
// compressed reduces to key issues and guidance only, dropping narrative
// prose almost entirely.
//
// On an LlmClient failure it falls back to a template-assembled
// narrative built directly from the recalled memories and feedback,
// rather than failing prepare_context outright.
func (o *Optimizer) consolidate(ctx context.Context, wi *models.WorkItem, mode models.ConsolidationMode, recalled []recallResult, feedback []string) (string, []string, string, error) {
	if o.llm != nil {
		inputs := map[string]any{
			"intent":   wi.Spec.Intent,
			"mode":     string(mode),
			"feedback": feedback,
			"memories": consolidateMemoryInputs(recalled),
		}
		out, err := o.llm.Call(ctx, "optimizer.consolidate_context", inputs, SchemaConsolidateContext)
		if err == nil {
			narrative, _ := out["narrative"].(string)
			guidance, _ := out["strategic_guidance"].(string)
			keyIssues := stringSlice(out["key_issues"])
			return narrative, keyIssues, guidance, nil
		}
	}

	return templateConsolidate(mode, recalled, feedback)
}

func consolidateMemoryInputs(recalled []recallResult) []map[string]any {
	out := make([]map[string]any, 0, len(recalled))
	for _, r := range recalled {
		out = append(out, map[string]any{
			"title":     r.Memory.Title,
			"content":   r.Memory.Content,
			"relevance": r.Relevance,
		})
	}
	return out
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
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

// templateConsolidate assembles a narrative directly from recalled
// memories and feedback without an LLM round-trip, respecting the same
// detail/summary/compressed shape the LLM path targets.
func templateConsolidate(mode models.ConsolidationMode, recalled []recallResult, feedback []string) (string, []string, string, error) {
	var b strings.Builder
	keyIssues := append([]string(nil), feedback...)

	switch mode {
	case models.ConsolidationCompressed:
		// No narrative prose; key issues and guidance only.
	case models.ConsolidationSummary:
		for _, r := range recalled {
			fmt.Fprintf(&b, "%s: %s\n", r.Memory.Title, firstSentence(r.Memory.Content))
		}
	default: // detailed
		for _, r := range recalled {
			fmt.Fprintf(&b, "%s\n%s\n\n", r.Memory.Title, r.Memory.Content)
		}
	}

	guidance := ""
	if len(feedback) > 0 {
		guidance = "Address prior review feedback before proceeding: " + strings.Join(feedback, "; ")
	}
	return b.String(), keyIssues, guidance, nil
}

func firstSentence(s string) string {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx+1]
	}
	const maxLen = 160
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}


