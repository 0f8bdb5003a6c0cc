package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/orchestrator"
	"github.com/mpataki/foundry/internal/projectspec"
	"github.com/mpataki/foundry/internal/recorder"
	"github.com/mpataki/foundry/internal/workspace"
)

func newRunCommand() *cobra.Command {
	var (
		templateID string
		language   string
		name       string
		budget     int
		timeout    string
	)
	cmd := &cobra.Command{
		Use:   "run <requirement>",
		Short: "Generate a project from a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			spec := a.defaultSpec()
			spec.Requirement = args[0]
			spec.ProjectName = name
			if spec.ProjectName == "" {
				spec.ProjectName = projectNameFrom(args[0])
			}
			if templateID != "" {
				spec.TemplateID = templateID
			}
			if language != "" {
				spec.Language = models.Language(language)
			}
			if budget > 0 {
				spec.IterationBudget = budget
			}
			if timeout != "" {
				d, err := parseDuration(timeout)
				if err != nil {
					return err
				}
				spec.StageTimeout = d
			}

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			defer a.serveMetrics(metricsListenAddr(a))()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runWithProgress(ctx, orch, spec, "")
			if err != nil {
				return err
			}
			printResult(a, result)
			if result.Status != models.SessionStatusSuccess {
				return fmt.Errorf("session finished with status %s", result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Template ID (default from config)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "python, java or kotlin (default from config)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (derived from the requirement when empty)")
	cmd.Flags().IntVarP(&budget, "budget", "b", 0, "Maximum iterations, 1 to 10 (default from config)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Per-stage timeout for build and test, e.g. 90s")
	return cmd
}

func newBatchCommand() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <specs.yaml>",
		Short: "Generate every project in a batch file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			specs, err := projectspec.Parse(args[0], a.defaultSpec())
			if err != nil {
				return err
			}
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			defer a.serveMetrics(metricsListenAddr(a))()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if parallel < 1 {
				parallel = 1
			}
			results := make([]*models.SessionResult, len(specs))
			// sessions are independent, so one failing never cancels the rest
			var g errgroup.Group
			g.SetLimit(parallel)
			for i, spec := range specs {
				i, spec := i, spec
				g.Go(func() error {
					res, err := runWithProgress(ctx, orch, spec, spec.ProjectName)
					if err != nil {
						return fmt.Errorf("%s: %w", spec.ProjectName, err)
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Println()
			failed := 0
			for _, res := range results {
				fmt.Printf("%-20s %-8s %-18s %d iteration(s)\n",
					res.Spec.ProjectName, shortID(res.ID), res.Status, len(res.Iterations))
				if res.Status != models.SessionStatusSuccess {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sessions failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "Sessions to run at once")
	return cmd
}

// printMu keeps progress lines from parallel sessions whole.
var printMu sync.Mutex

func printf(format string, args ...any) {
	printMu.Lock()
	defer printMu.Unlock()
	fmt.Printf(format, args...)
}

// runWithProgress runs a session and prints its events as they arrive.
// Lines carry prefix when set.
func runWithProgress(ctx context.Context, orch *orchestrator.Orchestrator, spec models.ProjectSpec, prefix string) (*models.SessionResult, error) {
	rec := recorder.New(uuid.NewString())
	events, unsubscribe := rec.Subscribe(0)
	defer unsubscribe()

	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	printf("%sSession %s: %s (%s, %s)\n", prefix, shortID(rec.SessionID()), spec.ProjectName, spec.TemplateID, spec.Language)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printEvent(prefix, spec.IterationBudget, ev)
		}
	}()

	result, err := orch.Run(ctx, spec, rec)
	// Run closes rec, which ends the loop above
	<-done
	return result, err
}

func printEvent(prefix string, budget int, ev recorder.Event) {
	switch ev.Type {
	case recorder.EventIterationStarted:
		printf("%sIteration %d/%d\n", prefix, ev.Iteration, budget)
	case recorder.EventStageFinished:
		if ev.Success {
			printf("%s  %-9s ok\n", prefix, ev.Stage)
			return
		}
		printf("%s  %-9s failed (%d error(s))\n", prefix, ev.Stage, len(ev.Errors))
		for i, e := range ev.Errors {
			if i == 3 {
				printf("%s    ... %d more\n", prefix, len(ev.Errors)-i)
				break
			}
			printf("%s    %s\n", prefix, truncate(firstLine(e), 100))
		}
	case recorder.EventSessionFinished:
		printf("%sFinished: %s\n", prefix, ev.Status)
	}
}

func printResult(a *app, res *models.SessionResult) {
	fmt.Printf("\nSession:    %s\n", res.ID)
	fmt.Printf("Status:     %s\n", res.Status)
	fmt.Printf("Iterations: %d/%d\n", len(res.Iterations), res.Spec.IterationBudget)
	if res.Fault != "" {
		fmt.Printf("Fault:      %s\n", res.Fault)
	}
	if len(res.MergedDependencies) > 0 {
		fmt.Printf("Deps:       %s\n", strings.Join(res.MergedDependencies, ", "))
	}
	fmt.Printf("Workspace:  %s\n", workspace.Dir(a.cfg.WorkspacesDir(), res.ID))
}

// projectNameFrom builds a package-safe name from the first words of a
// requirement.
func projectNameFrom(requirement string) string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(requirement), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !isASCIIWord(w) {
			continue
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	if len(words) == 0 || unicode.IsDigit(rune(words[0][0])) {
		words = append([]string{"project"}, words...)
	}
	return strings.Join(words, "_")
}

func isASCIIWord(w string) bool {
	for _, r := range w {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
