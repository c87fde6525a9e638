package models

import (
	"math"
	"time"
)

// Hybrid search weights: semantic similarity dominates, with keyword
// match and graph proximity as secondary signals.
const (
	WeightKeyword  = 0.2
	WeightSemantic = 0.7
	WeightGraph    = 0.1
)

// DecayImportance computes the decay formula:
//
//	decayed = base × exp(-age_days/180) × type_factor × (1 + 0.1·ln(1+access_count))
//
// capped to [0,10]. Shared by the Storage implementation (at search time)
// and the background Evolution-style maintenance task.
func DecayImportance(base float64, age time.Duration, t MemoryType, accessCount int) float64 {
	ageDays := age.Hours() / 24
	decayed := base * math.Exp(-ageDays/180) * t.TypeFactor() * (1 + 0.1*math.Log1p(float64(accessCount)))
	if decayed < 0 {
		return 0
	}
	if decayed > 10 {
		return 10
	}
	return decayed
}

// HybridScore combines keyword, semantic, and graph sub-scores (each
// normalized to [0,1]) using the weights above, then applies the
// namespace boost multiplicatively.
func HybridScore(keyword, semantic, graph, namespaceBoost float64) float64 {
	return (WeightKeyword*keyword + WeightSemantic*semantic + WeightGraph*graph) * namespaceBoost
}


