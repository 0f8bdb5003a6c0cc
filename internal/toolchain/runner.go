// Package toolchain builds and tests generated projects with the real
// language toolchains, each run in a scratch copy of the project.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mpataki/foundry/internal/diagnostics"
	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/stage"
	"github.com/mpataki/foundry/internal/workspace"
)

// Commands are shell command lines run from the project root. An empty
// Install skips the install step.
type Commands struct {
	Install string `koanf:"install"`
	Build   string `koanf:"build"`
	Test    string `koanf:"test"`
}

// DependenciesFileEnv names the file listing the merged dependencies,
// one per line, for use by install commands.
const DependenciesFileEnv = "FOUNDRY_DEPENDENCIES_FILE"

func DefaultCommands() map[models.Language]Commands {
	maven := Commands{
		Build: "mvn -q -B -DskipTests compile",
		Test:  "mvn -q -B test",
	}
	return map[models.Language]Commands{
		models.LanguagePython: {
			Build: "python3 -m compileall -q .",
			Test:  "python3 -m pytest -q -rfE",
		},
		models.LanguageJava:   maven,
		models.LanguageKotlin: maven,
	}
}

type Options struct {
	// WorkDir is the parent of the scratch directories. Empty means the
	// system temp dir.
	WorkDir      string
	Commands     map[models.Language]Commands
	KeepWorkDirs bool
}

type Runner struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Runner {
	cmds := DefaultCommands()
	for lang, c := range opts.Commands {
		def := cmds[lang]
		if c.Build == "" {
			c.Build = def.Build
		}
		if c.Test == "" {
			c.Test = def.Test
		}
		cmds[lang] = c
	}
	opts.Commands = cmds
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{opts: opts, logger: logger.Named("toolchain")}
}

func (r *Runner) commands(lang models.Language) (Commands, error) {
	c, ok := r.opts.Commands[lang]
	if !ok {
		return Commands{}, fmt.Errorf("no toolchain configured for %s", lang)
	}
	return c, nil
}

func (r *Runner) Build(ctx context.Context, req stage.BuildRequest) (*stage.BuildResult, error) {
	cmds, err := r.commands(req.Language)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	dir, cleanup, err := r.prepare(req.Files)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var log strings.Builder
	if cmds.Install != "" {
		depsFile := filepath.Join(dir, ".foundry-dependencies.txt")
		if err := os.WriteFile(depsFile, []byte(strings.Join(req.Dependencies, "\n")+"\n"), 0644); err != nil {
			return nil, fmt.Errorf("failed to write dependency list: %w", err)
		}
		res, err := r.run(ctx, dir, "install", cmds.Install, []string{DependenciesFileEnv + "=" + depsFile})
		if res != nil {
			log.WriteString(relativize(res.Output, dir))
		}
		if err != nil {
			return &stage.BuildResult{Log: log.String()}, err
		}
		if res.ExitCode != 0 {
			return &stage.BuildResult{
				Errors: []string{fmt.Sprintf("dependency install failed with exit code %d", res.ExitCode)},
				Log:    log.String(),
			}, nil
		}
	}

	res, err := r.run(ctx, dir, "build", cmds.Build, nil)
	if res != nil {
		log.WriteString(relativize(res.Output, dir))
	}
	if err != nil {
		return &stage.BuildResult{Log: log.String()}, err
	}

	out := &stage.BuildResult{Success: res.ExitCode == 0, Log: log.String()}
	if !out.Success {
		out.Errors = errorLines(out.Log, req.Language, res.ExitCode)
	}
	return out, nil
}

func (r *Runner) Test(ctx context.Context, req stage.TestRequest) (*stage.TestResult, error) {
	cmds, err := r.commands(req.Language)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	dir, cleanup, err := r.prepare(req.Files)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	res, err := r.run(ctx, dir, "test", cmds.Test, nil)
	if err != nil {
		out := &stage.TestResult{}
		if res != nil {
			out.Log = relativize(res.Output, dir)
		}
		return out, err
	}

	log := relativize(res.Output, dir)
	counts := CountTests(log, req.Language)
	out := &stage.TestResult{
		Discovered: counts.Discovered,
		Passed:     counts.Passed,
		Failed:     counts.Failed,
		Log:        log,
	}
	switch {
	case res.ExitCode == 0:
		out.Success = true
	case req.Language == models.LanguagePython && res.ExitCode == pytestNoTests:
		// nothing collected counts as a pass
		out.Success = true
	default:
		out.Errors = errorLines(log, req.Language, res.ExitCode)
	}
	return out, nil
}

// pytest exits with 5 when no tests were collected.
const pytestNoTests = 5

func (r *Runner) run(ctx context.Context, dir, step, command string, env []string) (*processResult, error) {
	r.logger.Debug("running toolchain step", zap.String("step", step), zap.String("command", command))
	res, err := runShell(ctx, dir, command, env)
	if err != nil {
		r.logger.Warn("toolchain step interrupted", zap.String("step", step), zap.Error(err))
		return res, err
	}
	r.logger.Debug("toolchain step finished",
		zap.String("step", step),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// prepare materializes files into a fresh scratch directory.
func (r *Runner) prepare(files models.FileSet) (string, func(), error) {
	if r.opts.WorkDir != "" {
		if err := os.MkdirAll(r.opts.WorkDir, 0755); err != nil {
			return "", nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.opts.WorkDir, "foundry-build-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	cleanup := func() {
		if r.opts.KeepWorkDirs {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove scratch dir", zap.String("dir", dir), zap.Error(err))
		}
	}
	if err := workspace.Materialize(dir, files); err != nil {
		cleanup()
		return "", nil, err
	}
	return dir, cleanup, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// relativize strips the scratch directory from paths in log.
func relativize(log, dir string) string {
	return strings.ReplaceAll(log, dir+string(filepath.Separator), "")
}

// errorLines extracts diagnostics from log, falling back to its last lines.
func errorLines(log string, lang models.Language, exitCode int) []string {
	if lines := diagnostics.Extract(log, lang); len(lines) > 0 {
		return lines
	}
	var last []string
	for _, line := range strings.Split(strings.TrimSpace(log), "\n") {
		if strings.TrimSpace(line) != "" {
			last = append(last, strings.TrimSpace(line))
		}
	}
	if len(last) > 10 {
		last = last[len(last)-10:]
	}
	if len(last) == 0 {
		return []string{fmt.Sprintf("exited with code %d", exitCode)}
	}
	return []string{strings.Join(last, "\n")}
}
