package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/workspace"
)

func newTemplatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List available project templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, t := range a.registry.List() {
				fmt.Printf("%-16s %-8s %s\n", t.ID, t.Language, t.Description)
			}
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a project directory for import and layout problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			lang := models.Language(a.cfg.Defaults.Language)
			if language != "" {
				lang = models.Language(language)
			}
			switch lang {
			case models.LanguagePython, models.LanguageJava, models.LanguageKotlin:
			default:
				return fmt.Errorf("unsupported language %q", lang)
			}

			files, err := workspace.LoadDir(args[0])
			if err != nil {
				return err
			}

			report := a.validator().Validate(files, lang)
			for _, issue := range report.Errors {
				printIssue("error", issue)
			}
			for _, issue := range report.Warnings {
				printIssue("warning", issue)
			}

			fmt.Printf("%d files, %d errors, %d warnings\n", len(files), len(report.Errors), len(report.Warnings))
			if !report.Success() {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "python, java or kotlin (default from config)")
	return cmd
}

func printIssue(level string, issue models.ValidationIssue) {
	fmt.Printf("%s: %s: %s: %s\n", level, issue.FilePath, issue.Kind, issue.Detail)
}
