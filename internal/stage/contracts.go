// Package stage adapts the external collaborators of a generation session
// into executors that always report a models.StageOutcome.
package stage

import (
	"context"
	"time"

	"github.com/mpataki/foundry/internal/models"
)

type ScaffoldResult struct {
	Files                models.FileSet
	DeclaredDependencies []string
	Markers              models.TemplateMarkers
}

type Scaffolder interface {
	Scaffold(ctx context.Context, projectName, templateID string) (*ScaffoldResult, error)
}

type GenerateRequest struct {
	Requirement  string
	CurrentFiles models.FileSet
	ErrorContext []models.ErrorSummary
	Language     models.Language
	ProjectName  string
	Iteration    int
}

// Generator returns a complete replacement file set. Errors wrapping
// models.ErrGenerationFault end the session.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (models.FileSet, error)
}

type BuildRequest struct {
	Files        models.FileSet
	Dependencies []string
	Language     models.Language
	Timeout      time.Duration
}

type BuildResult struct {
	Success bool
	Errors  []string
	Log     string
}

type Builder interface {
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

type TestRequest struct {
	Files    models.FileSet
	Language models.Language
	Timeout  time.Duration
}

type TestResult struct {
	Success    bool
	Discovered int
	Passed     int
	Failed     int
	Errors     []string
	Log        string
}

type Tester interface {
	Test(ctx context.Context, req TestRequest) (*TestResult, error)
}

// Sink receives the terminal session record.
type Sink interface {
	SaveSession(ctx context.Context, result *models.SessionResult) error
}
