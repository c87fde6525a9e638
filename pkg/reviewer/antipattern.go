package reviewer

import (
	"fmt"
	"log/slog"
	"regexp"
)

// antiPatternRule is a precompiled marker pattern: compile once, scan
// many.
type antiPatternRule struct {
	Name  string
	Regex *regexp.Regexp
}

// antiPatternScanner holds the compiled set of gate-3 marker patterns:
// no anti-pattern markers (TODO, FIXME, HACK, stub, mock) in delivered
// code.
type antiPatternScanner struct {
	rules []antiPatternRule
}

// builtinAntiPatterns are the literal markers this gate rejects, each
// word-bounded so "mockery" or "stubborn" don't false-positive.
var builtinAntiPatterns = map[string]string{
	"todo":  `(?i)\bTODO\b`,
	"fixme": `(?i)\bFIXME\b`,
	"hack":  `(?i)\bHACK\b`,
	"stub":  `(?i)\bstub\b`,
	"mock":  `(?i)\bmock\b`,
}

// defaultAntiPatternScanner compiles the builtin patterns, skipping and
// logging any that fail to compile rather than panicking (mirrors
// pkg/masking's compileBuiltinPatterns "skip on error" behavior).
func defaultAntiPatternScanner() antiPatternScanner {
	s := antiPatternScanner{}
	for name, pattern := range builtinAntiPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("reviewer: failed to compile anti-pattern rule, skipping", "pattern", name, "error", err)
			continue
		}
		s.rules = append(s.rules, antiPatternRule{Name: name, Regex: compiled})
	}
	return s
}

// scan reports one issue string per distinct marker found in text.
func (s antiPatternScanner) scan(text string) []string {
	var issues []string
	for _, rule := range s.rules {
		if loc := rule.Regex.FindStringIndex(text); loc != nil {
			issues = append(issues, fmt.Sprintf("anti-pattern marker %q found", rule.Name))
		}
	}
	return issues
}


