package reviewer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// ReviewInput bundles everything the seven quality gates
// need to evaluate one Executor attempt.
type ReviewInput struct {
	Intent           string
	ExecutionContext string
	Requirements     []models.Requirement
	TypedHoles       []string
	Constraints      []string
	Artifacts        []models.Artifact
}

// implementationText concatenates every file artifact's content, the
// form every LLM-backed gate call receives as "implementation".
func (in ReviewInput) implementationText() string {
	var b strings.Builder
	for _, a := range in.Artifacts {
		if a.Kind != "file" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", a.Path, a.Content)
	}
	return b.String()
}

// executionContextWithConstraints appends the item's declared constraints
// to its execution context so verify_correctness can check them without
// a separate LLM operation for the declared-constraints-hold
// gate.
func (in ReviewInput) executionContextWithConstraints() string {
	if len(in.Constraints) == 0 {
		return in.ExecutionContext
	}
	return in.ExecutionContext + "\n\nDeclared constraints:\n- " + strings.Join(in.Constraints, "\n- ")
}

// Review runs all seven quality gates and returns the overall Verdict:
// pass requires every gate to pass.
func (r *Reviewer) Review(ctx context.Context, in ReviewInput) (models.Verdict, error) {
	implementation := in.implementationText()

	results := make([]models.GateResult, 0, len(models.AllQualityGates))

	satisfied, issues, err := r.ValidateIntent(ctx, in.Intent, implementation, in.ExecutionContext)
	if err != nil {
		return models.Verdict{}, err
	}
	results = append(results, models.GateResult{Gate: models.GateIntentSatisfied, Passed: satisfied, Issues: issues})

	complete, completenessIssues, err := r.VerifyCompleteness(ctx, in.Requirements, implementation, in.ExecutionContext)
	if err != nil {
		return models.Verdict{}, err
	}
	complete = complete && noUnaddressedTypedHoles(in)
	results = append(results, models.GateResult{Gate: models.GateRequirementsComplete, Passed: complete, Issues: completenessIssues})

	antiPatternIssues := r.scanner.scan(implementation)
	results = append(results, models.GateResult{Gate: models.GateNoAntiPatterns, Passed: len(antiPatternIssues) == 0, Issues: antiPatternIssues})

	testsPassed, testIssues := gateTestsPresent(in)
	results = append(results, models.GateResult{Gate: models.GateTestsPresent, Passed: testsPassed, Issues: testIssues})

	docsPassed, docIssues := gateDocumentationPresent(in)
	results = append(results, models.GateResult{Gate: models.GateDocumentationPresent, Passed: docsPassed, Issues: docIssues})

	correct, correctnessIssues, err := r.VerifyCorrectness(ctx, implementation, in.executionContextWithConstraints())
	if err != nil {
		return models.Verdict{}, err
	}
	danglingIssues, constraintIssues := splitCorrectnessIssues(correctnessIssues)
	results = append(results, models.GateResult{Gate: models.GateNoDanglingReferences, Passed: correct && len(danglingIssues) == 0, Issues: danglingIssues})
	results = append(results, models.GateResult{Gate: models.GateConstraintsHold, Passed: correct && len(constraintIssues) == 0, Issues: constraintIssues})

	return buildVerdict(results), nil
}

func noUnaddressedTypedHoles(in ReviewInput) bool {
	if len(in.TypedHoles) == 0 {
		return true
	}
	for _, hole := range in.TypedHoles {
		if !strings.Contains(in.implementationText(), hole) {
			return false
		}
	}
	return true
}

// gateTestsPresent requires at least one artifact whose path names it a
// test.
func gateTestsPresent(in ReviewInput) (bool, []string) {
	for _, a := range in.Artifacts {
		if a.Kind == "file" && strings.Contains(a.Path, "_test.") {
			return true, nil
		}
	}
	return false, []string{"no test file found among delivered artifacts"}
}

// gateDocumentationPresent requires every exported Go identifier's
// preceding doc comment to exist — approximated here as "every
// non-test .go file contains at least one '//' comment line", matching
// the coarse static checks the rest of this gate set uses instead of a
// full AST walk.
func gateDocumentationPresent(in ReviewInput) (bool, []string) {
	var missing []string
	for _, a := range in.Artifacts {
		if a.Kind != "file" || !strings.HasSuffix(a.Path, ".go") || strings.Contains(a.Path, "_test.") {
			continue
		}
		if !strings.Contains(a.Content, "//") {
			missing = append(missing, fmt.Sprintf("%s: no doc comments found", a.Path))
		}
	}
	return len(missing) == 0, missing
}

// splitCorrectnessIssues partitions VerifyCorrectness's issues between
// the dangling-reference gate and the constraints-hold gate by keyword,
// since the LLM call returns one flat issue list backing both gates.
func splitCorrectnessIssues(issues []string) (dangling, constraints []string) {
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		if strings.Contains(lower, "dangling") || strings.Contains(lower, "undefined reference") || strings.Contains(lower, "unresolved") {
			dangling = append(dangling, issue)
			continue
		}
		constraints = append(constraints, issue)
	}
	return dangling, constraints
}

func buildVerdict(results []models.GateResult) models.Verdict {
	v := models.Verdict{Pass: true, GateResults: results}
	for _, r := range results {
		if r.Passed {
			continue
		}
		v.Pass = false
		v.FailedGates = append(v.FailedGates, r.Gate)
		v.Issues = append(v.Issues, r.Issues...)
	}
	return v
}


