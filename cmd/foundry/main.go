package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mpataki/foundry/internal/tui"
)

var metricsAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:          "foundry",
		Short:        "Generate, build and test projects from a requirement",
		Long:         "Foundry scaffolds a project from a template and iterates generate, validate, build and test until it passes or the budget runs out.",
		RunE:         runTUI,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newTemplatesCommand())
	rootCmd.AddCommand(newValidateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	// the alt screen owns the terminal, so logs go to a file
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	app := tui.NewApp(a.sessions(), a.registry.List())
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

// metricsListenAddr prefers the flag over config.
func metricsListenAddr(a *app) string {
	if metricsAddr != "" {
		return metricsAddr
	}
	return a.cfg.Metrics.Addr
}
