// Package models defines the orchestration core's persisted data types:
// work items, agents, events, and memory notes.
package models

import (
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

// Phase is the coarse stage a work item occupies in the work plan
// protocol. Phases advance linearly; a review failure may leave the
// phase unchanged but never regresses it.
type Phase string

// Phase values, in declared progression order.
const (
	PhasePrompt    Phase = "prompt"
	PhaseSpec      Phase = "spec"
	PhaseFullSpec  Phase = "full_spec"
	PhasePlan      Phase = "plan"
	PhaseArtifacts Phase = "artifacts"
)

// phaseOrder gives each phase's index in the linear progression, used to
// enforce monotonicity.
var phaseOrder = map[Phase]int{
	PhasePrompt:    0,
	PhaseSpec:      1,
	PhaseFullSpec:  2,
	PhasePlan:      3,
	PhaseArtifacts: 4,
}

// Index returns the phase's position in the linear progression.
func (p Phase) Index() int { return phaseOrder[p] }

// Next returns the phase that follows p, and false if p is terminal.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhasePrompt:
		return PhaseSpec, true
	case PhaseSpec:
		return PhaseFullSpec, true
	case PhaseFullSpec:
		return PhasePlan, true
	case PhasePlan:
		return PhaseArtifacts, true
	default:
		return "", false
	}
}

// State is the fine-grained runtime state of a work item.
type State string

// State values.
const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateBlocked    State = "blocked"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Terminal reports whether s is a terminal state (Complete or Failed).
func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

// Spec is the opaque structured payload carried through phases: intent
// text, requirements, typed holes, a test plan, and constraints. The
// orchestration core does not interpret its contents beyond what the
// Optimizer and Reviewer need; it is round-tripped as-is.
type Spec struct {
	Intent          string         `json:"intent"`
	Requirements    []Requirement  `json:"requirements,omitempty"`
	TypedHoles      []string       `json:"typed_holes,omitempty"`
	TestPlan        []string       `json:"test_plan,omitempty"`
	Constraints     []string       `json:"constraints,omitempty"`
	Tasks           []PlanTask     `json:"tasks,omitempty"`
	ExtraAttributes map[string]any `json:"extra_attributes,omitempty"`
}

// Requirement is a single testable requirement discovered during the
// Spec/FullSpec phases.
type Requirement struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Component   string   `json:"component,omitempty"`
	Assertion   string   `json:"assertion,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Addressed   bool     `json:"addressed"`
}

// PlanTask is one ordered task produced during the Plan phase, with its
// parallelizability and dependency edges.
type PlanTask struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	Parallelizable bool     `json:"parallelizable"`
	DependsOn      []string `json:"depends_on,omitempty"`
}

// WorkItem is the unit of scheduling.
type WorkItem struct {
	ID            ids.WorkItemId
	Phase         Phase
	State         State
	Spec          Spec
	Priority      int
	Dependencies  []ids.WorkItemId
	AssignedAgent *ids.AgentId
	Parent        *ids.WorkItemId
	Namespace     ids.Namespace
	ReviewAttempt uint32
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Ready reports whether wi can be dispatched: Pending state and every
// dependency resolved against the supplied completion set.
func (wi *WorkItem) Ready(complete func(ids.WorkItemId) bool) bool {
	if wi.State != StatePending {
		return false
	}
	for _, dep := range wi.Dependencies {
		if !complete(dep) {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy for safe handoff across goroutine
// boundaries (dependencies slice is copied; Spec's nested slices are not
// mutated in place by any component, so a shallow copy of Spec is safe).
func (wi *WorkItem) Clone() *WorkItem {
	cp := *wi
	cp.Dependencies = append([]ids.WorkItemId(nil), wi.Dependencies...)
	return &cp
}


