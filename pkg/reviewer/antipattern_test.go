package reviewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAntiPatternScanner_FindsMarkers(t *testing.T) {
	s := defaultAntiPatternScanner()
	issues := s.scan("func DoThing() { // TODO: finish this\n}")
	assert.Len(t, issues, 1)
}

func TestAntiPatternScanner_WordBoundaryAvoidsFalsePositives(t *testing.T) {
	s := defaultAntiPatternScanner()
	issues := s.scan("this mockery of a function is stubborn but fine")
	assert.Empty(t, issues)
}

func TestAntiPatternScanner_CleanTextPasses(t *testing.T) {
	s := defaultAntiPatternScanner()
	issues := s.scan("func Add(a, b int) int { return a + b }")
	assert.Empty(t, issues)
}


