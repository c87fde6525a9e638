package models

import (
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

// MemoryType classifies a memory note for importance decay and retrieval
// weighting.
type MemoryType string

// MemoryType values and their decay type_factor.
const (
	MemoryTypeArchitectureDecision MemoryType = "architecture_decision"
	MemoryTypeConstraint           MemoryType = "constraint"
	MemoryTypeCodePattern          MemoryType = "code_pattern"
	MemoryTypeAgentEvent           MemoryType = "agent_event"
	MemoryTypeBugFix               MemoryType = "bug_fix"
	MemoryTypeInsight              MemoryType = "insight"
	MemoryTypeTask                 MemoryType = "task"
	MemoryTypeOther                MemoryType = "other"
)

// TypeFactor returns the decay multiplier for t.
func (t MemoryType) TypeFactor() float64 {
	switch t {
	case MemoryTypeArchitectureDecision:
		return 1.2
	case MemoryTypeConstraint:
		return 1.1
	case MemoryTypeCodePattern, MemoryTypeAgentEvent:
		return 1.0
	case MemoryTypeBugFix, MemoryTypeInsight, MemoryTypeTask:
		return 0.9
	default:
		return 0.8
	}
}

// MemoryNote is a single stored memory.
type MemoryNote struct {
	ID            ids.MemoryId
	Namespace     ids.Namespace
	Type          MemoryType
	Title         string
	Content       string
	Tags          []string
	Importance    float64 // base importance, 0-10, before decay
	Embedding     []float32
	AccessCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastAccessed  time.Time
	Archived      bool
	ArchiveReason string
}

// DecayedImportance applies the exponential decay formula:
//
//	decayed = base × exp(-age_days/180) × type_factor × (1 + 0.1·ln(1+access_count))
//
// capped to [0,10].
func (m *MemoryNote) DecayedImportance(now time.Time) float64 {
	return DecayImportance(m.Importance, now.Sub(m.CreatedAt), m.Type, m.AccessCount)
}

// MemoryLink is a directed edge in the knowledge graph between two
// memories: a node table plus an edge table, never owning pointers from
// edge to node.
type MemoryLink struct {
	Source   ids.MemoryId
	Target   ids.MemoryId
	Kind     string
	Strength float64
	Reason   string
}

// SearchQuery parameterizes the hybrid keyword+graph+semantic search.
type SearchQuery struct {
	Query string
	// QueryEmbedding is the caller-computed vector for the query text,
	// used for the semantic sub-score. Embedding computation is an
	// LlmClient-adjacent concern outside Storage; a nil value yields a
	// zero semantic sub-score rather than an error.
	QueryEmbedding  []float32
	Namespace       *ids.Namespace
	MemoryTypes     []MemoryType
	Tags            []string
	MinImportance   *float64
	MaxAgeDays      *int
	Limit           int
	IncludeArchived bool
}

// SearchResult is one ranked hit from a hybrid search.
type SearchResult struct {
	Memory    MemoryNote
	Relevance float64
	Keyword   float64
	Semantic  float64
	Graph     float64
}


