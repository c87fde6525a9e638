package optimizer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// Skill is one entry in the filesystem-backed skill catalog, retrieved
// as a discover_skills candidate.
type Skill struct {
	Name        string
	Description string
	Keywords    []string
}

// SkillCatalog lists the skills available for discovery.
type SkillCatalog interface {
	List() ([]Skill, error)
}

// DirCatalog is a SkillCatalog backed by a directory of skill
// description files, one skill per immediate subdirectory (name taken
// from the directory name, description from an optional SKILL.md
// file inside it). No third-party library in the pack handles this
// kind of ad-hoc directory scan; it is a thin os.ReadDir walk.
type DirCatalog struct {
	Root string
}

// List implements SkillCatalog.
func (c DirCatalog) List() ([]Skill, error) {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var skills []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		desc, _ := readFirstNonEmptyLine(filepath.Join(c.Root, e.Name(), "SKILL.md"))
		skills = append(skills, Skill{
			Name:        e.Name(),
			Description: desc,
			Keywords:    strings.Fields(strings.ToLower(e.Name() + " " + desc)),
		})
	}
	return skills, nil
}

func readFirstNonEmptyLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
	return "", nil
}

// DiscoverSkills implements discover_skills: candidates come from the
// catalog, scored by semantic match against taskDescription via the
// LlmClient, capped at maxSkills. On any LlmClient failure it falls back
// to a deterministic keyword match.
func (o *Optimizer) DiscoverSkills(ctx context.Context, taskDescription string, maxSkills int, currentUsageFraction float64) (models.SkillSelection, error) {
	if maxSkills <= 0 {
		maxSkills = o.maxSkills
	}

	candidates, err := o.catalog.List()
	if err != nil {
		return models.SkillSelection{}, err
	}
	if len(candidates) == 0 {
		return models.SkillSelection{}, nil
	}

	names := make([]string, len(candidates))
	for i, s := range candidates {
		names[i] = s.Name
	}

	if o.llm != nil {
		out, err := o.llm.Call(ctx, "optimizer.discover_skills", map[string]any{
			"task_description":       taskDescription,
			"available_skills":       names,
			"max_skills":             maxSkills,
			"current_usage_fraction": currentUsageFraction,
		}, SchemaDiscoverSkills)
		if err == nil {
			if selected, ok := out["skills"].([]any); ok {
				var skills []string
				for _, s := range selected {
					if str, ok := s.(string); ok {
						skills = append(skills, str)
					}
				}
				if len(skills) > maxSkills {
					skills = skills[:maxSkills]
				}
				tokens, _ := out["estimated_tokens"].(float64)
				return models.SkillSelection{Skills: skills, EstimatedTokens: int(tokens)}, nil
			}
		}
		slog.Warn("optimizer: discover_skills LLM call failed, falling back to keyword match", "error", err)
	}

	return keywordMatchSkills(candidates, taskDescription, maxSkills), nil
}

// keywordMatchSkills is the deterministic fallback: score each candidate
// by the count of its keywords appearing in taskDescription, take the
// top maxSkills.
func keywordMatchSkills(candidates []Skill, taskDescription string, maxSkills int) models.SkillSelection {
	task := strings.ToLower(taskDescription)
	type scored struct {
		name  string
		score int
	}
	var ranked []scored
	for _, s := range candidates {
		score := 0
		for _, kw := range s.Keywords {
			if kw != "" && strings.Contains(task, kw) {
				score++
			}
		}
		ranked = append(ranked, scored{name: s.Name, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if maxSkills > len(ranked) {
		maxSkills = len(ranked)
	}
	skills := make([]string, 0, maxSkills)
	for i := 0; i < maxSkills; i++ {
		skills = append(skills, ranked[i].name)
	}
	const estTokensPerSkill = 150
	return models.SkillSelection{Skills: skills, EstimatedTokens: len(skills) * estTokensPerSkill}
}


