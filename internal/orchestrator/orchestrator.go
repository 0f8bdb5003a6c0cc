package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpataki/foundry/internal/metrics"
	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/recorder"
	"github.com/mpataki/foundry/internal/stage"
	"github.com/mpataki/foundry/internal/storage"
	"github.com/mpataki/foundry/internal/workspace"
)

const (
	DefaultMaxSummaries   = 20
	DefaultMaxDetailBytes = 500
	sinkTimeout           = 30 * time.Second
)

// Executors are the stages a session drives, one per pipeline step.
type Executors struct {
	Scaffold stage.Executor
	Generate stage.Executor
	Validate stage.Executor
	Build    stage.Executor
	Test     stage.Executor
}

type Options struct {
	// Store persists finished sessions and serves the read methods.
	Store *storage.Storage
	// WorkspaceDir, when set, receives session.json and the final project
	// of every session.
	WorkspaceDir string
	// Sinks receive the terminal result in addition to Store and the
	// workspace.
	Sinks   []stage.Sink
	Metrics *metrics.Metrics

	MaxSummaries   int
	MaxDetailBytes int
}

type Orchestrator struct {
	exec   Executors
	opts   Options
	sinks  []stage.Sink
	logger *zap.Logger
}

func New(exec Executors, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.MaxSummaries <= 0 {
		opts.MaxSummaries = DefaultMaxSummaries
	}
	if opts.MaxDetailBytes <= 0 {
		opts.MaxDetailBytes = DefaultMaxDetailBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var sinks []stage.Sink
	if opts.Store != nil {
		sinks = append(sinks, opts.Store)
	}
	if opts.WorkspaceDir != "" {
		sinks = append(sinks, &workspace.Sink{BaseDir: opts.WorkspaceDir})
	}
	sinks = append(sinks, opts.Sinks...)

	return &Orchestrator{
		exec:   exec,
		opts:   opts,
		sinks:  sinks,
		logger: logger.Named("orchestrator"),
	}
}

// session is the mutable state of one Run call.
type session struct {
	result  *models.SessionResult
	state   State
	rec     *recorder.Recorder
	logger  *zap.Logger
	files   models.FileSet
	deps    []string
	context []models.ErrorSummary
}

// Run drives one session to a terminal state. The only error returned is
// for an invalid spec; every other failure is reported in the result. rec
// may be nil. When set, its session ID is used and it is closed on return.
func (o *Orchestrator) Run(ctx context.Context, spec models.ProjectSpec, rec *recorder.Recorder) (*models.SessionResult, error) {
	if rec != nil {
		defer rec.Close()
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if rec != nil {
		id = rec.SessionID()
	} else {
		rec = recorder.New(id)
	}

	s := &session{
		result: &models.SessionResult{
			ID:        id,
			Spec:      spec,
			Status:    models.SessionStatusRunning,
			StartedAt: time.Now(),
		},
		state:  StateScaffolding,
		rec:    rec,
		logger: o.logger.With(zap.String("session", id)),
	}

	s.logger.Info("session started",
		zap.String("template", spec.TemplateID),
		zap.String("language", string(spec.Language)),
		zap.Int("budget", spec.IterationBudget))
	o.opts.Metrics.SessionStarted()

	o.drive(ctx, s)
	o.finish(ctx, s)
	return s.result, nil
}

func (o *Orchestrator) drive(ctx context.Context, s *session) {
	spec := s.result.Spec

	scaffold, err := o.runStage(ctx, s, o.exec.Scaffold, 0, stage.Input{Spec: spec})
	if err != nil {
		now := time.Now()
		o.fault(s, &models.IterationRecord{Index: 1, StartedAt: now, CompletedAt: now, Scaffold: &scaffold}, err)
		return
	}
	s.files = scaffold.Files
	s.deps = MergeDependencies(scaffold.Dependencies)
	if scaffold.Markers != nil {
		s.result.Markers = *scaffold.Markers
	}
	o.transition(s, EventStagePassed)

	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			o.fault(s, nil, fmt.Errorf("%w: %v", models.ErrCancelled, err))
			return
		}

		record := models.IterationRecord{Index: i, StartedAt: time.Now()}
		if i == 1 {
			record.Scaffold = &scaffold
		}
		s.rec.Emit(recorder.Event{Type: recorder.EventIterationStarted, Iteration: i})
		s.logger.Info("iteration started", zap.Int("iteration", i), zap.Int("error_context", len(s.context)))

		passed, err := o.iterate(ctx, s, &record)
		record.CompletedAt = time.Now()
		if err != nil {
			o.fault(s, &record, err)
			return
		}
		if passed {
			record.OverallSuccess = true
			s.result.Iterations = append(s.result.Iterations, record)
			o.transition(s, EventStagePassed)
			return
		}

		s.context = o.errorContext(&record)
		record.ErrorContext = s.context
		s.result.Iterations = append(s.result.Iterations, record)
		s.logger.Info("iteration failed",
			zap.Int("iteration", i),
			zap.String("stage", string(record.FailedStage())),
			zap.Int("errors", len(s.context)))

		if i >= spec.IterationBudget {
			o.transition(s, EventExhausted)
			return
		}
		o.transition(s, EventRetry)
	}
}

// iterate runs Generate through Test once, stopping at the first failed
// stage. It reports whether every stage passed.
func (o *Orchestrator) iterate(ctx context.Context, s *session, record *models.IterationRecord) (bool, error) {
	in := stage.Input{
		Spec:         s.result.Spec,
		Iteration:    record.Index,
		Files:        s.files,
		Dependencies: s.deps,
		ErrorContext: s.context,
	}

	gen, err := o.runStage(ctx, s, o.exec.Generate, record.Index, in)
	record.Generate = &gen
	if err != nil || !gen.Success {
		return false, err
	}
	s.files = gen.Files
	s.result.FinalFiles = gen.Files
	in.Files = gen.Files
	o.transition(s, EventStagePassed)

	val, err := o.runStage(ctx, s, o.exec.Validate, record.Index, in)
	record.Validate = &val
	if err != nil || !val.Success {
		return false, err
	}
	o.transition(s, EventStagePassed)

	merged := MergeDependencies(s.deps, gen.Dependencies)
	in.Dependencies = merged
	build, err := o.runStage(ctx, s, o.exec.Build, record.Index, in)
	record.Build = &build
	if err != nil || !build.Success {
		return false, err
	}
	s.deps = merged
	o.transition(s, EventStagePassed)

	test, err := o.runStage(ctx, s, o.exec.Test, record.Index, in)
	record.Test = &test
	if err != nil || !test.Success {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) runStage(ctx context.Context, s *session, exec stage.Executor, iteration int, in stage.Input) (models.StageOutcome, error) {
	name := exec.Stage()
	s.rec.Emit(recorder.Event{Type: recorder.EventStageStarted, Iteration: iteration, Stage: name})

	out, err := exec.Execute(ctx, in)
	out.Stage = name
	if out.Files != nil && out.FileCount == 0 {
		out.FileCount = len(out.Files)
	}

	s.rec.Emit(recorder.Event{
		Type:      recorder.EventStageFinished,
		Iteration: iteration,
		Stage:     name,
		Success:   out.Success,
		Errors:    out.Errors,
	})
	o.opts.Metrics.StageFinished(out)

	fields := []zap.Field{
		zap.Int("iteration", iteration),
		zap.String("stage", string(name)),
		zap.Bool("success", out.Success),
		zap.Duration("duration", out.Duration),
	}
	if !out.Success {
		fields = append(fields, zap.Int("errors", len(out.Errors)))
	}
	s.logger.Debug("stage finished", fields...)
	return out, err
}

func (o *Orchestrator) transition(s *session, ev Event) {
	next, err := Next(s.state, ev)
	if err != nil {
		// Only reachable through a bug in the loop above.
		s.logger.Error("invalid state transition", zap.Error(err))
		next = StateFailedFault
		s.result.Fault = err.Error()
	}
	s.logger.Debug("state transition",
		zap.String("from", string(s.state)),
		zap.String("event", string(ev)),
		zap.String("to", string(next)))
	s.state = next
}

func (o *Orchestrator) fault(s *session, record *models.IterationRecord, err error) {
	if record != nil {
		s.result.Iterations = append(s.result.Iterations, *record)
	}
	s.result.Fault = err.Error()
	s.logger.Warn("session faulted", zap.Error(err))
	o.transition(s, EventFault)
}

// errorContext collects the summaries of a failed iteration in pipeline
// order, which puts validation errors before build errors before test
// failures, then bounds the list.
func (o *Orchestrator) errorContext(record *models.IterationRecord) []models.ErrorSummary {
	var summaries []models.ErrorSummary
	for _, out := range []*models.StageOutcome{record.Generate, record.Validate, record.Build, record.Test} {
		if out == nil || out.Success {
			continue
		}
		issues := out.Issues
		if len(issues) == 0 {
			issues = stage.Summarize(out.Stage, "", out.Errors)
		}
		summaries = append(summaries, issues...)
	}
	return BoundContext(summaries, o.opts.MaxSummaries, o.opts.MaxDetailBytes)
}

func (o *Orchestrator) finish(ctx context.Context, s *session) {
	switch s.state {
	case StateSucceeded:
		s.result.Status = models.SessionStatusSuccess
	case StateFailedExhausted:
		s.result.Status = models.SessionStatusFailedExhausted
	default:
		s.result.Status = models.SessionStatusFailedFault
	}
	if s.result.FinalFiles == nil {
		s.result.FinalFiles = s.files
	}
	s.result.MergedDependencies = s.deps
	s.result.CompletedAt = time.Now()

	s.logger.Info("session finished",
		zap.String("status", string(s.result.Status)),
		zap.Int("iterations", len(s.result.Iterations)),
		zap.Duration("duration", s.result.CompletedAt.Sub(s.result.StartedAt)))
	o.opts.Metrics.SessionFinished(s.result.Status, len(s.result.Iterations))

	// Sinks still run after cancellation so the history survives.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, sink := range o.sinks {
		if err := sink.SaveSession(sinkCtx, s.result); err != nil {
			s.logger.Error("failed to save session", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}

	s.rec.Emit(recorder.Event{
		Type:      recorder.EventSessionFinished,
		Iteration: len(s.result.Iterations),
		Success:   s.result.Status == models.SessionStatusSuccess,
		Status:    s.result.Status,
	})
}

// MergeDependencies concatenates the lists, keeping the first occurrence
// of each exact string.
func MergeDependencies(lists ...[]string) []string {
	seen := make(map[string]bool)
	merged := []string{}
	for _, list := range lists {
		for _, dep := range list {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			merged = append(merged, dep)
		}
	}
	return merged
}

// BoundContext keeps at most maxItems summaries and truncates each detail
// to maxDetail bytes on a rune boundary.
func BoundContext(summaries []models.ErrorSummary, maxItems, maxDetail int) []models.ErrorSummary {
	if len(summaries) > maxItems {
		summaries = summaries[:maxItems]
	}
	out := make([]models.ErrorSummary, len(summaries))
	for i, s := range summaries {
		s.Detail = truncate(s.Detail, maxDetail)
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Read methods for the CLI and TUI

var errNoStore = errors.New("no session store configured")

func (o *Orchestrator) ListSessions(limit int) ([]*models.SessionSummary, error) {
	if o.opts.Store == nil {
		return nil, errNoStore
	}
	return o.opts.Store.ListSessions(limit)
}

func (o *Orchestrator) GetSession(id string) (*models.SessionResult, error) {
	if o.opts.Store == nil {
		return nil, errNoStore
	}
	return o.opts.Store.GetSession(id)
}

// DeleteSession removes the stored session and its workspace directory.
func (o *Orchestrator) DeleteSession(id string) error {
	if o.opts.Store == nil {
		return errNoStore
	}
	if _, err := o.opts.Store.GetSession(id); err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if o.opts.WorkspaceDir != "" {
		if err := workspace.Remove(o.opts.WorkspaceDir, id); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove workspace: %w", err)
		}
	}
	return o.opts.Store.DeleteSession(id)
}
