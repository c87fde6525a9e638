package llmclient

// Default schema bodies for the eight named modules the core addresses
// by module name. Each schema fixes the shape the
// Optimizer/Reviewer/Executor parse straight out of out[...] — loosening any of
// these without updating the corresponding parse site is a breaking
// change.
var defaultSchemas = map[string]string{
	"optimizer.discover_skills": `{
		"type": "object",
		"required": ["skills"],
		"properties": {
			"skills": {"type": "array", "items": {"type": "string"}},
			"estimated_tokens": {"type": "number"}
		}
	}`,
	"optimizer.consolidate_context": `{
		"type": "object",
		"properties": {
			"narrative": {"type": "string"},
			"key_issues": {"type": "array", "items": {"type": "string"}},
			"strategic_guidance": {"type": "string"}
		}
	}`,
	"reviewer.extract_requirements": `{
		"type": "object",
		"required": ["requirements"],
		"properties": {
			"requirements": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "text"],
					"properties": {
						"id": {"type": "string"},
						"text": {"type": "string"},
						"component": {"type": "string"},
						"assertion": {"type": "string"},
						"constraints": {"type": "array", "items": {"type": "string"}}
					}
				}
			}
		}
	}`,
	"reviewer.validate_intent": `{
		"type": "object",
		"required": ["satisfied"],
		"properties": {
			"satisfied": {"type": "boolean"},
			"issues": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"reviewer.verify_completeness": `{
		"type": "object",
		"required": ["complete"],
		"properties": {
			"complete": {"type": "boolean"},
			"issues": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"reviewer.verify_correctness": `{
		"type": "object",
		"required": ["correct"],
		"properties": {
			"correct": {"type": "boolean"},
			"issues": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"reviewer.generate_guidance": `{
		"type": "object",
		"required": ["summary"],
		"properties": {
			"summary": {"type": "string"},
			"actions": {"type": "array", "items": {"type": "string"}},
			"blocking_gates": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"executor.execute_step": `{
		"type": "object",
		"required": ["content"],
		"properties": {
			"content": {"type": "string"}
		}
	}`,
}

// RegisterDefaultSchemas registers every fixed per-module schema the
// core's LlmClient callers address. Called once at startup before the
// first Optimizer or Reviewer call.
func RegisterDefaultSchemas(reg *SchemaRegistry) error {
	for ref, body := range defaultSchemas {
		if err := reg.Register(ref, []byte(body)); err != nil {
			return err
		}
	}
	return nil
}


