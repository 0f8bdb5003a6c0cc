package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mpataki/foundry/internal/config"
	"github.com/mpataki/foundry/internal/generator"
	"github.com/mpataki/foundry/internal/logging"
	"github.com/mpataki/foundry/internal/metrics"
	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/orchestrator"
	"github.com/mpataki/foundry/internal/scaffold"
	"github.com/mpataki/foundry/internal/stage"
	"github.com/mpataki/foundry/internal/storage"
	"github.com/mpataki/foundry/internal/toolchain"
	"github.com/mpataki/foundry/internal/validator"
)

// app holds what every command needs: config, logger, database and the
// template registry.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.Storage
	registry *scaffold.Registry
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics

	closers []func()
}

// newApp loads config and opens the database. Logs go to logOut, or to
// foundry.log in the data dir when logOut is nil.
func newApp(logOut io.Writer) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{cfg: cfg}
	if logOut == nil {
		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.DataDir, "foundry.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		a.closers = append(a.closers, func() { logFile.Close() })
		logOut = logFile
	}
	a.logger, err = logging.New(cfg.Log, logOut)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.logger.Sync() })

	a.store, err = storage.New(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, func() { a.store.Close() })

	a.registry, err = scaffold.NewRegistry(a.logger, cfg.TemplateDirs...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promReg)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// sessions returns an orchestrator usable only for reading and deleting
// stored sessions.
func (a *app) sessions() *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Executors{}, a.options(), a.logger)
}

func (a *app) options() orchestrator.Options {
	return orchestrator.Options{
		Store:          a.store,
		WorkspaceDir:   a.cfg.WorkspacesDir(),
		Metrics:        a.metrics,
		MaxSummaries:   a.cfg.Context.MaxSummaries,
		MaxDetailBytes: a.cfg.Context.MaxDetailBytes,
	}
}

// orchestrator wires the full stage pipeline from config.
func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	gen, err := a.generator()
	if err != nil {
		return nil, err
	}
	runner := toolchain.New(toolchain.Options{
		WorkDir:  a.cfg.ScratchDir(),
		Commands: a.toolchainCommands(),
	}, a.logger)

	exec := orchestrator.Executors{
		Scaffold: &stage.ScaffoldExecutor{Scaffolder: a.registry},
		Generate: &stage.GenerateExecutor{Generator: gen},
		Validate: &stage.ValidateExecutor{Validator: a.validator()},
		Build:    &stage.BuildExecutor{Builder: runner},
		Test:     &stage.TestExecutor{Tester: runner},
	}
	return orchestrator.New(exec, a.options(), a.logger), nil
}

func (a *app) generator() (stage.Generator, error) {
	g := a.cfg.Generator
	switch g.Provider {
	case "lua":
		gen, err := generator.NewLua(g.Script, a.logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "openai":
		gen, err := generator.NewOpenAI(generator.OpenAIOptions{
			BaseURL:     g.BaseURL,
			APIKey:      g.APIKey,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			JSONMode:    g.JSONMode,
			Timeout:     g.Timeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
	return nil, fmt.Errorf("unknown generator provider %q", g.Provider)
}

func (a *app) validator() *validator.Validator {
	return validator.New(validator.Options{
		UnresolvedImports: validator.UnresolvedPolicy(a.cfg.Validation.UnresolvedImports),
	}, a.logger)
}

func (a *app) toolchainCommands() map[models.Language]toolchain.Commands {
	cmds := make(map[models.Language]toolchain.Commands, len(a.cfg.Toolchain))
	for lang, c := range a.cfg.Toolchain {
		cmds[models.Language(lang)] = c
	}
	return cmds
}

// defaultSpec is the spec a project gets for fields nobody set.
func (a *app) defaultSpec() models.ProjectSpec {
	d := a.cfg.Defaults
	return models.ProjectSpec{
		Language:        models.Language(d.Language),
		TemplateID:      d.Template,
		IterationBudget: d.Budget,
		StageTimeout:    d.StageTimeout,
	}
}

// serveMetrics exposes /metrics on addr until the returned function is
// called. An empty addr serves nothing.
func (a *app) serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{Registry: a.promReg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// resolveID accepts a full session ID or a unique prefix of one.
func (a *app) resolveID(arg string) (string, error) {
	if _, err := a.store.GetSummary(arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	all, err := a.store.ListSessions(-1)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range all {
		if strings.HasPrefix(s.ID, arg) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session %q not found", arg)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("session prefix %q is ambiguous (%d matches)", arg, len(matches))
}
