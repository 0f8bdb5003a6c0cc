package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/scaffold"
	"github.com/mpataki/foundry/internal/storage"
	"github.com/mpataki/foundry/internal/workspace"
)

func newListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.store.ListSessions(limit)
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			for _, s := range sessions {
				fmt.Printf("%s %-20s [%s] %d iter  %-8s %s\n",
					shortID(s.ID), s.ProjectName, s.Status, s.Iterations,
					storage.FormatTimeAgo(s.CreatedAt), truncate(s.Requirement, 50))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session and its iterations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			s, err := a.store.GetSession(id)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			fmt.Printf("Session %s: %s\n", s.ID, s.Spec.ProjectName)
			fmt.Printf("Status: %s\n", s.Status)
			fmt.Printf("Template: %s (%s)\n", s.Spec.TemplateID, s.Spec.Language)
			fmt.Printf("Requirement: %s\n", s.Spec.Requirement)
			printWorkspace(a, s.ID)
			if s.Fault != "" {
				fmt.Printf("Fault: %s\n", s.Fault)
			}
			if len(s.MergedDependencies) > 0 {
				fmt.Printf("Dependencies: %s\n", strings.Join(s.MergedDependencies, ", "))
			}

			if len(s.Iterations) > 0 {
				fmt.Println("\nIterations:")
				for i := range s.Iterations {
					printIteration(&s.Iterations[i])
				}
			}

			if tree && len(s.FinalFiles) > 0 {
				out, err := scaffold.Tree(s.Spec.ProjectName, s.FinalFiles)
				if err != nil {
					return err
				}
				fmt.Println("\nFiles:")
				fmt.Print(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the final file tree")
	return cmd
}

func printWorkspace(a *app, id string) {
	ws, err := workspace.Open(a.cfg.WorkspacesDir(), id)
	if err != nil {
		fmt.Printf("Workspace: %s (missing)\n", workspace.Dir(a.cfg.WorkspacesDir(), id))
		return
	}
	meta, err := ws.ReadSessionMetadata()
	if err != nil {
		fmt.Printf("Workspace: %s (%v)\n", ws.Path, err)
		return
	}
	fmt.Printf("Workspace: %s (%d files)\n", ws.Path, len(meta.Files))
}

func printIteration(it *models.IterationRecord) {
	var stages []string
	for _, out := range it.Outcomes() {
		mark := "ok"
		if !out.Success {
			mark = "failed"
		}
		stages = append(stages, fmt.Sprintf("%s %s", out.Stage, mark))
	}
	fmt.Printf("  %d. %s\n", it.Index, strings.Join(stages, ", "))
	for _, e := range it.ErrorContext {
		loc := ""
		if e.FilePath != "" {
			loc = e.FilePath + ": "
		}
		fmt.Printf("     [%s/%s] %s%s\n", e.Stage, e.IssueKind, loc, truncate(firstLine(e.Detail), 80))
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := a.sessions().DeleteSession(id); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}

			fmt.Printf("Deleted session %s\n", id)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <session-id> <out.zip>",
		Short: "Write a session's final project to a zip archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveID(args[0])
			if err != nil {
				return err
			}
			s, err := a.store.GetSession(id)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			if len(s.FinalFiles) == 0 {
				return fmt.Errorf("session %s has no files to export", shortID(id))
			}

			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			err = workspace.WriteZip(f, workspace.Export{
				Root:         s.Spec.ProjectName,
				Files:        s.FinalFiles,
				Language:     s.Spec.Language,
				Dependencies: s.MergedDependencies,
				ModTime:      s.CompletedAt,
			})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(args[1])
				return err
			}

			fmt.Printf("Exported %d files to %s\n", len(s.FinalFiles), args[1])
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}
