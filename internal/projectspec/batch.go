// Package projectspec reads batch files describing several projects to
// generate in one invocation.
//
//	defaults:
//	  language: python
//	  template: fastapi
//	  iterations: 3
//	  timeout: 90s
//	projects:
//	  - name: todo
//	    requirement: A todo list API with due dates
//	  - name: ledger
//	    template: spring_boot
//	    language: java
//	    requirement: A double-entry ledger service
package projectspec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mpataki/foundry/internal/models"
)

type Batch struct {
	Defaults models.ProjectSpec   `yaml:"defaults"`
	Projects []models.ProjectSpec `yaml:"projects"`
}

// Parse reads a batch file. Fields missing from a project are taken from
// the file's defaults, then from fallback.
func Parse(path string, fallback models.ProjectSpec) ([]models.ProjectSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Decode(data, fallback)
}

func Decode(data []byte, fallback models.ProjectSpec) ([]models.ProjectSpec, error) {
	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}
	if len(b.Projects) == 0 {
		return nil, fmt.Errorf("batch must define at least one project")
	}

	defaults := merge(b.Defaults, fallback)
	seen := make(map[string]bool)
	specs := make([]models.ProjectSpec, 0, len(b.Projects))
	for i, p := range b.Projects {
		spec := merge(p, defaults)
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("project %d (%s): %w", i+1, spec.ProjectName, err)
		}
		if seen[spec.ProjectName] {
			return nil, fmt.Errorf("project %d: duplicate name %q", i+1, spec.ProjectName)
		}
		seen[spec.ProjectName] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// merge fills the zero fields of s from d. Requirement and ProjectName are
// per project and never inherited.
func merge(s, d models.ProjectSpec) models.ProjectSpec {
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.TemplateID == "" {
		s.TemplateID = d.TemplateID
	}
	if s.IterationBudget == 0 {
		s.IterationBudget = d.IterationBudget
	}
	if s.StageTimeout == 0 {
		s.StageTimeout = d.StageTimeout
	}
	return s
}
