// Package generator produces project file sets from a requirement, either
// through an OpenAI-compatible chat model or a local Lua script.
package generator

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"

	"github.com/mpataki/foundry/internal/graph"
	"github.com/mpataki/foundry/internal/stage"
)

// Files larger than this are elided from the prompt.
const maxPromptFileBytes = 16 << 10

var systemPrompt = strings.TrimSpace(dedent.Dedent(`
	You are a senior software engineer generating complete, runnable projects.
	Reply with a single JSON object and nothing else, shaped as
	{"files": [{"path": "relative/path", "content": "file contents"}]}.
	Return every file of the project, not only the ones you changed.
	Paths are relative, use forward slashes and never contain "..".
	Keep the project layout and manifests of the scaffold unless an error
	requires changing them. Include tests.
`))

// BuildPrompt renders the user message for one generation attempt.
func BuildPrompt(req stage.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nLanguage: %s\nAttempt: %d\n\n", req.ProjectName, req.Language, req.Iteration)
	fmt.Fprintf(&b, "Requirement:\n%s\n", strings.TrimSpace(req.Requirement))

	if len(req.ErrorContext) > 0 {
		b.WriteString("\nThe previous attempt failed. Fix these problems:\n")
		for _, e := range req.ErrorContext {
			loc := ""
			if e.FilePath != "" {
				loc = " " + e.FilePath
			}
			fmt.Fprintf(&b, "- [%s/%s]%s: %s\n", e.Stage, e.IssueKind, loc, e.Detail)
		}
	}

	if len(req.CurrentFiles) > 0 {
		b.WriteString("\nCurrent project files:\n")
		for _, p := range promptOrder(req) {
			content := req.CurrentFiles[p].Content
			if len(content) > maxPromptFileBytes {
				content = content[:maxPromptFileBytes] + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", p, content)
		}
	}
	return b.String()
}

// promptOrder lists source files with their dependencies first, then every
// other file. A cyclic project falls back to path order.
func promptOrder(req stage.GenerateRequest) []string {
	order, err := graph.Build(req.CurrentFiles, req.Language).BuildOrder()
	if err != nil {
		return req.CurrentFiles.Paths()
	}
	listed := make(map[string]bool, len(order))
	for _, p := range order {
		listed[p] = true
	}
	for _, p := range req.CurrentFiles.Paths() {
		if !listed[p] {
			order = append(order, p)
		}
	}
	return order
}
