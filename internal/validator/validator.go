// Package validator checks a generated project for import and layout
// problems before any build is attempted.
package validator

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mpataki/foundry/internal/graph"
	"github.com/mpataki/foundry/internal/models"
)

type UnresolvedPolicy string

const (
	PolicyWarn  UnresolvedPolicy = "warn"
	PolicyError UnresolvedPolicy = "error"
)

type Options struct {
	UnresolvedImports UnresolvedPolicy
}

type Validator struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Validator {
	if opts.UnresolvedImports == "" {
		opts.UnresolvedImports = PolicyWarn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{opts: opts, logger: logger.Named("validator")}
}

// Validate builds a fresh import graph for files and reports cycles, then
// import problems, then layout problems.
func (v *Validator) Validate(files models.FileSet, lang models.Language) models.ValidationReport {
	g := graph.Build(files, lang)
	var report models.ValidationReport

	for _, cycle := range g.DetectCycles() {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Kind:        models.IssueCircularDependency,
			FilePath:    cycle[0],
			RelatedPath: cycle[len(cycle)-2],
			Detail:      "import cycle: " + strings.Join(cycle, " -> "),
		})
	}

	for _, p := range g.Nodes() {
		for _, token := range g.UnresolvedEdgesFrom(p) {
			issue := models.ValidationIssue{
				Kind:     models.IssueUnresolvedImport,
				FilePath: p,
				Detail:   fmt.Sprintf("import %q does not match any project file", token),
			}
			if v.opts.UnresolvedImports == PolicyError {
				report.Errors = append(report.Errors, issue)
			} else {
				report.Warnings = append(report.Warnings, issue)
			}
		}
		for _, m := range g.MalformedImportsFrom(p) {
			report.Errors = append(report.Errors, models.ValidationIssue{
				Kind:     models.IssueMalformedImport,
				FilePath: p,
				Detail:   fmt.Sprintf("line %d: malformed import %q", m.Line, m.Statement),
			})
		}
	}

	switch lang {
	case models.LanguagePython:
		report.Errors = append(report.Errors, missingMarkers(files, g)...)
	case models.LanguageJava, models.LanguageKotlin:
		report.Errors = append(report.Errors, packageMismatches(g, lang)...)
	}

	v.logger.Debug("validated file set",
		zap.String("language", string(lang)),
		zap.Int("files", len(g.Nodes())),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)))
	return report
}

func missingMarkers(files models.FileSet, g *graph.Graph) []models.ValidationIssue {
	dirs := g.PackageDirs()
	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	var issues []models.ValidationIssue
	for _, d := range names {
		marker := d + "/__init__.py"
		if files.Has(marker) {
			continue
		}
		issues = append(issues, models.ValidationIssue{
			Kind:        models.IssueMissingPackageMarker,
			FilePath:    marker,
			RelatedPath: dirs[d][0],
			Detail:      fmt.Sprintf("directory %s is imported as a package but has no __init__.py", d),
		})
	}
	return issues
}

func sourceRoots(lang models.Language) []string {
	roots := []string{"src/main/" + string(lang) + "/", "src/test/" + string(lang) + "/"}
	if lang == models.LanguageKotlin {
		roots = append(roots, "src/main/java/", "src/test/java/")
	}
	return roots
}

func packageMismatches(g *graph.Graph, lang models.Language) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for _, p := range g.Nodes() {
		root := ""
		for _, r := range sourceRoots(lang) {
			if strings.HasPrefix(p, r) {
				root = r
				break
			}
		}
		if root == "" {
			continue
		}

		dir := path.Dir(strings.TrimPrefix(p, root))
		expected := ""
		if dir != "." {
			expected = strings.ReplaceAll(dir, "/", ".")
		}
		declared, _ := g.DeclaredPackage(p)
		if declared == expected {
			continue
		}

		detail := fmt.Sprintf("declares package %q but lives in %q", declared, expected)
		if declared == "" {
			detail = fmt.Sprintf("missing package declaration, expected %q", expected)
		}
		issues = append(issues, models.ValidationIssue{
			Kind:     models.IssuePackagePathMismatch,
			FilePath: p,
			Detail:   detail,
		})
	}
	return issues
}
