package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/foundry/internal/diagnostics"
	"github.com/mpataki/foundry/internal/manifest"
	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/validator"
)

// Input carries everything a stage may need. Executors read only the
// fields relevant to them.
type Input struct {
	Spec         models.ProjectSpec
	Iteration    int
	Files        models.FileSet
	Dependencies []string
	ErrorContext []models.ErrorSummary
}

// Executor runs one stage. A non-nil error is returned only for faults that
// must end the session; every other failure is reported in the outcome.
type Executor interface {
	Stage() models.Stage
	Execute(ctx context.Context, in Input) (models.StageOutcome, error)
}

type ScaffoldExecutor struct {
	Scaffolder Scaffolder
}

func (e *ScaffoldExecutor) Stage() models.Stage { return models.StageScaffold }

func (e *ScaffoldExecutor) Execute(ctx context.Context, in Input) (models.StageOutcome, error) {
	start := time.Now()
	out := models.StageOutcome{Stage: models.StageScaffold}
	if err := cancelled(ctx); err != nil {
		return fail(out, start, err), err
	}

	res, err := e.Scaffolder.Scaffold(ctx, in.Spec.ProjectName, in.Spec.TemplateID)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", models.ErrCancelled, err)
		}
		return fail(out, start, err), fmt.Errorf("scaffold: %w", err)
	}
	if res == nil {
		err = errors.New("scaffolder returned no result")
		return fail(out, start, err), fmt.Errorf("scaffold: %w", err)
	}

	markers := res.Markers
	out.Success = true
	out.Files = res.Files
	out.FileCount = len(res.Files)
	out.Dependencies = res.DeclaredDependencies
	out.Markers = &markers
	out.Duration = time.Since(start)
	return out, nil
}

type GenerateExecutor struct {
	Generator Generator
}

func (e *GenerateExecutor) Stage() models.Stage { return models.StageGenerate }

func (e *GenerateExecutor) Execute(ctx context.Context, in Input) (models.StageOutcome, error) {
	start := time.Now()
	out := models.StageOutcome{Stage: models.StageGenerate}
	if err := cancelled(ctx); err != nil {
		return fail(out, start, err), err
	}

	files, err := e.Generator.Generate(ctx, GenerateRequest{
		Requirement:  in.Spec.Requirement,
		CurrentFiles: in.Files,
		ErrorContext: in.ErrorContext,
		Language:     in.Spec.Language,
		ProjectName:  in.Spec.ProjectName,
		Iteration:    in.Iteration,
	})
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
		return fail(out, start, err), err
	case errors.Is(err, models.ErrGenerationFault), errors.Is(err, models.ErrInvalidPath):
		return fail(out, start, err), err
	case err != nil:
		return failIssues(out, start, in.Spec.Language, err.Error()), nil
	case len(files) == 0:
		return failIssues(out, start, in.Spec.Language, "generator returned no files"), nil
	}

	for p := range files {
		if clean, err := models.NormalizePath(p); err != nil || clean != p {
			err = fmt.Errorf("%w: generator returned %q", models.ErrInvalidPath, p)
			return fail(out, start, err), err
		}
	}

	deps, err := manifest.Dependencies(files, in.Spec.Language)
	if err != nil {
		return failIssues(out, start, in.Spec.Language, err.Error()), nil
	}

	out.Success = true
	out.Files = files
	out.FileCount = len(files)
	out.Dependencies = deps
	out.Duration = time.Since(start)
	return out, nil
}

type ValidateExecutor struct {
	Validator *validator.Validator
}

func (e *ValidateExecutor) Stage() models.Stage { return models.StageValidate }

func (e *ValidateExecutor) Execute(ctx context.Context, in Input) (models.StageOutcome, error) {
	start := time.Now()
	out := models.StageOutcome{Stage: models.StageValidate}
	if err := cancelled(ctx); err != nil {
		return fail(out, start, err), err
	}

	report := e.Validator.Validate(in.Files, in.Spec.Language)
	out.Validation = &report
	out.Success = report.Success()
	for _, issue := range report.Errors {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s: %s", issue.Kind, issue.FilePath, issue.Detail))
		out.Issues = append(out.Issues, models.ErrorSummary{
			Stage:     models.StageValidate,
			IssueKind: string(issue.Kind),
			FilePath:  issue.FilePath,
			Detail:    issue.Detail,
		})
	}
	out.Duration = time.Since(start)
	return out, nil
}

type BuildExecutor struct {
	Builder Builder
}

func (e *BuildExecutor) Stage() models.Stage { return models.StageBuild }

func (e *BuildExecutor) Execute(ctx context.Context, in Input) (models.StageOutcome, error) {
	start := time.Now()
	out := models.StageOutcome{Stage: models.StageBuild, Dependencies: in.Dependencies}
	if err := cancelled(ctx); err != nil {
		return fail(out, start, err), err
	}

	stageCtx, cancel := withTimeout(ctx, in.Spec.StageTimeout)
	defer cancel()

	res, err := e.Builder.Build(stageCtx, BuildRequest{
		Files:        in.Files,
		Dependencies: in.Dependencies,
		Language:     in.Spec.Language,
		Timeout:      in.Spec.StageTimeout,
	})
	// the session context, not the stage deadline
	if fault := cancelled(ctx); fault != nil {
		return fail(out, start, fault), fault
	}
	if timedOut(stageCtx, err) {
		log := ""
		if res != nil {
			log = res.Log
		}
		return timeoutOutcome(out, start, log), nil
	}
	if err != nil {
		return failIssues(out, start, in.Spec.Language, err.Error()), nil
	}
	if res == nil {
		return failIssues(out, start, in.Spec.Language, "builder returned no result"), nil
	}

	out.RawLog = res.Log
	if !res.Success {
		errs := res.Errors
		if len(errs) == 0 {
			errs = []string{"build failed"}
		}
		return failIssues(out, start, in.Spec.Language, errs...), nil
	}
	out.Success = true
	out.Duration = time.Since(start)
	return out, nil
}

type TestExecutor struct {
	Tester Tester
}

func (e *TestExecutor) Stage() models.Stage { return models.StageTest }

func (e *TestExecutor) Execute(ctx context.Context, in Input) (models.StageOutcome, error) {
	start := time.Now()
	out := models.StageOutcome{Stage: models.StageTest}
	if err := cancelled(ctx); err != nil {
		return fail(out, start, err), err
	}

	stageCtx, cancel := withTimeout(ctx, in.Spec.StageTimeout)
	defer cancel()

	res, err := e.Tester.Test(stageCtx, TestRequest{
		Files:    in.Files,
		Language: in.Spec.Language,
		Timeout:  in.Spec.StageTimeout,
	})
	// the session context, not the stage deadline
	if fault := cancelled(ctx); fault != nil {
		return fail(out, start, fault), fault
	}
	if timedOut(stageCtx, err) {
		log := ""
		if res != nil {
			log = res.Log
		}
		return timeoutOutcome(out, start, log), nil
	}
	if err != nil {
		return failIssues(out, start, in.Spec.Language, err.Error()), nil
	}
	if res == nil {
		return failIssues(out, start, in.Spec.Language, "tester returned no result"), nil
	}

	out.RawLog = res.Log
	out.Tests = &models.TestCounts{Discovered: res.Discovered, Passed: res.Passed, Failed: res.Failed}
	if !res.Success || res.Failed > 0 {
		errs := res.Errors
		if len(errs) == 0 {
			errs = []string{fmt.Sprintf("%d of %d tests failed", res.Failed, res.Discovered)}
		}
		return failIssues(out, start, in.Spec.Language, errs...), nil
	}
	out.Success = true
	out.Duration = time.Since(start)
	return out, nil
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrCancelled, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func timedOut(stageCtx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, models.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(stageCtx.Err(), context.DeadlineExceeded)
}

func timeoutOutcome(out models.StageOutcome, start time.Time, log string) models.StageOutcome {
	out.RawLog = log
	out.Errors = []string{"Timeout"}
	out.Issues = []models.ErrorSummary{{
		Stage:     out.Stage,
		IssueKind: string(diagnostics.KindTimeout),
		Detail:    fmt.Sprintf("%s stage exceeded its time limit", out.Stage),
	}}
	out.Success = false
	out.Duration = time.Since(start)
	return out
}

func fail(out models.StageOutcome, start time.Time, err error) models.StageOutcome {
	out.Success = false
	out.Errors = []string{err.Error()}
	out.Duration = time.Since(start)
	return out
}

func failIssues(out models.StageOutcome, start time.Time, lang models.Language, errs ...string) models.StageOutcome {
	out.Success = false
	out.Errors = errs
	out.Issues = Summarize(out.Stage, lang, errs)
	out.Duration = time.Since(start)
	return out
}

// Summarize converts raw error lines into error summaries.
func Summarize(stage models.Stage, lang models.Language, errs []string) []models.ErrorSummary {
	out := make([]models.ErrorSummary, 0, len(errs))
	for _, e := range errs {
		out = append(out, models.ErrorSummary{
			Stage:     stage,
			IssueKind: string(diagnostics.Classify(e, lang)),
			FilePath:  diagnostics.FilePath(e),
			Detail:    e,
		})
	}
	return out
}
