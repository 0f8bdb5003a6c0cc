package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type Language string

const (
	LanguagePython Language = "python"
	LanguageJava   Language = "java"
	LanguageKotlin Language = "kotlin"
)

// ProjectSpec is the immutable input of a session.
type ProjectSpec struct {
	Requirement     string        `yaml:"requirement" json:"requirement" validate:"required"`
	Language        Language      `yaml:"language" json:"language" validate:"required,oneof=python java kotlin"`
	TemplateID      string        `yaml:"template" json:"template_id" validate:"required"`
	ProjectName     string        `yaml:"name" json:"project_name" validate:"required,max=64,excludesall=/\\ "`
	IterationBudget int           `yaml:"iterations" json:"iteration_budget" validate:"min=1,max=10"`
	StageTimeout    time.Duration `yaml:"timeout" json:"stage_timeout" validate:"gt=0"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func (s ProjectSpec) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid project spec: %w", err)
	}
	return nil
}
