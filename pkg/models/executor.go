package models

import "github.com/mnemosyne-ai/mnemosyne/pkg/ids"

// ExecutionStatus is the outcome of an Executor run.
type ExecutionStatus string

// ExecutionStatus values.
const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Artifact is one deliverable produced by an Executor run: a file write,
// or a memory write made through the Storage interface.
type Artifact struct {
	Kind    string // "file" or "memory"
	Path    string
	Content string
	// MemoryID is set when Kind == "memory".
	MemoryID *ids.MemoryId
}

// ExecutorReport is the outcome of Executor.Execute.
type ExecutorReport struct {
	WorkItemID ids.WorkItemId
	Status     ExecutionStatus
	Artifacts  []Artifact
	Error      string
}


