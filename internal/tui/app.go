package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/scaffold"
)

type View int

const (
	ViewSessionList View = iota
	ViewSessionDetail
	ViewIteration
	ViewFiles
	ViewTemplates
)

// Sessions is the read side of the orchestrator.
type Sessions interface {
	ListSessions(limit int) ([]*models.SessionSummary, error)
	GetSession(id string) (*models.SessionResult, error)
	DeleteSession(id string) error
}

type App struct {
	sessions  Sessions
	templates []*scaffold.Template

	view        View
	summaries   []*models.SessionSummary
	selectedIdx int
	selected    *models.SessionResult
	iterIdx     int
	pager       viewport.Model

	width  int
	height int
	err    error
}

func NewApp(sessions Sessions, templates []*scaffold.Template) *App {
	return &App{
		sessions:  sessions,
		templates: templates,
		view:      ViewSessionList,
		pager:     viewport.New(80, 20),
		width:     80,
		height:    24,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadSessions, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.pager.Width = msg.Width
		a.pager.Height = max(msg.Height-4, 1)
		return a, nil

	case sessionsLoadedMsg:
		a.summaries = msg.sessions
		a.err = msg.err
		if a.selectedIdx >= len(a.summaries) {
			a.selectedIdx = max(len(a.summaries)-1, 0)
		}
		return a, nil

	case tickMsg:
		// sessions saved by other processes show up on refresh
		if a.view == ViewSessionList {
			return a, tea.Batch(a.loadSessions, a.tickCmd())
		}
		return a, a.tickCmd()

	case sessionDetailMsg:
		a.err = msg.err
		if msg.err == nil {
			a.selected = msg.session
			a.iterIdx = 0
			a.view = ViewSessionDetail
		}
		return a, nil

	case sessionDeletedMsg:
		a.err = msg.err
		return a, a.loadSessions
	}

	if a.view == ViewIteration || a.view == ViewFiles {
		var cmd tea.Cmd
		a.pager, cmd = a.pager.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	switch a.view {
	case ViewSessionList:
		return a.handleListKey(msg)
	case ViewSessionDetail:
		return a.handleDetailKey(msg)
	case ViewIteration, ViewFiles:
		return a.handlePagerKey(msg)
	case ViewTemplates:
		if msg.String() == "esc" || msg.String() == "q" {
			a.view = ViewSessionList
		}
	}
	return a, nil
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.summaries)-1 {
			a.selectedIdx++
		}

	case "enter":
		if a.selectedIdx < len(a.summaries) {
			return a, a.loadSession(a.summaries[a.selectedIdx].ID)
		}

	case "t":
		a.view = ViewTemplates

	case "r":
		return a, a.loadSessions

	case "d":
		if a.selectedIdx < len(a.summaries) {
			return a, a.deleteSession(a.summaries[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewSessionList
		a.selected = nil
		a.iterIdx = 0

	case "up", "k":
		if a.iterIdx > 0 {
			a.iterIdx--
		}

	case "down", "j":
		if a.selected != nil && a.iterIdx < len(a.selected.Iterations)-1 {
			a.iterIdx++
		}

	case "enter":
		if a.selected != nil && a.iterIdx < len(a.selected.Iterations) {
			a.pager.SetContent(renderIteration(&a.selected.Iterations[a.iterIdx]))
			a.pager.GotoTop()
			a.view = ViewIteration
		}

	case "f":
		if a.selected != nil {
			a.pager.SetContent(a.renderFiles())
			a.pager.GotoTop()
			a.view = ViewFiles
		}
	}

	return a, nil
}

func (a *App) handlePagerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewSessionDetail
		return a, nil
	}
	var cmd tea.Cmd
	a.pager, cmd = a.pager.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewSessionList:
		return a.viewSessionList()
	case ViewSessionDetail:
		return a.viewSessionDetail()
	case ViewIteration:
		return a.viewPager(fmt.Sprintf("Iteration %d", a.iterIdx+1))
	case ViewFiles:
		return a.viewPager("Files")
	case ViewTemplates:
		return a.viewTemplates()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusSuccess   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusExhausted = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewSessionList() string {
	s := titleStyle.Render("Foundry") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.summaries) == 0 {
		s += "No sessions yet. Start one with 'foundry run'.\n"
	} else {
		s += "Recent Sessions\n"
		s += "───────────────\n"

		for i, sum := range a.summaries {
			line := formatSessionLine(sum)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if sum.Status != models.SessionStatusRunning {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [t] templates  [r] refresh  [q] quit")

	return s
}

func formatSessionLine(sum *models.SessionSummary) string {
	status := formatStatus(sum.Status)
	age := formatAge(sum.CreatedAt)
	return fmt.Sprintf("%-8s %-16s %-12s %s  %-4s %dx  %s",
		shortID(sum.ID), truncate(sum.ProjectName, 16), sum.TemplateID, status, age, sum.Iterations,
		truncate(sum.Requirement, 35))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

func formatStatus(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusRunning:
		return statusRunning.Render("● running")
	case models.SessionStatusSuccess:
		return statusSuccess.Render("✓ success")
	case models.SessionStatusFailedExhausted:
		return statusExhausted.Render("⚠ exhausted")
	case models.SessionStatusFailedFault:
		return statusFailed.Render("✗ fault")
	default:
		return string(status)
	}
}

func (a *App) viewSessionDetail() string {
	if a.selected == nil {
		return "No session selected"
	}
	sess := a.selected

	header := fmt.Sprintf("Session %s: %s", shortID(sess.ID), sess.Spec.ProjectName)
	s := titleStyle.Render(header) + "  " + formatStatus(sess.Status) + "\n\n"
	s += sess.Spec.Requirement + "\n\n"

	s += labelStyle.Render("Template: ") + fmt.Sprintf("%s (%s)", sess.Spec.TemplateID, sess.Spec.Language) + "\n"
	s += labelStyle.Render("Budget:   ") + fmt.Sprintf("%d, %s per stage", sess.Spec.IterationBudget, sess.Spec.StageTimeout) + "\n"
	if len(sess.MergedDependencies) > 0 {
		s += labelStyle.Render("Deps:     ") + dimStyle.Render(strings.Join(sess.MergedDependencies, ", ")) + "\n"
	}
	if sess.Fault != "" {
		s += labelStyle.Render("Fault:    ") + statusFailed.Render(sess.Fault) + "\n"
	}
	s += "\n"

	s += "Iterations\n"
	s += "──────────\n"

	if len(sess.Iterations) == 0 {
		s += "(no iterations)\n"
	}
	for i := range sess.Iterations {
		line := formatIterationLine(&sess.Iterations[i])
		if i == a.iterIdx {
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] details  [f] files  [esc] back")

	return s
}

// formatIterationLine renders "2. generate ✓ validate ✓ build ✗   14s".
func formatIterationLine(it *models.IterationRecord) string {
	parts := []string{fmt.Sprintf("%d.", it.Index)}
	for _, out := range it.Outcomes() {
		mark := statusSuccess.Render("✓")
		if !out.Success {
			mark = statusFailed.Render("✗")
		}
		parts = append(parts, string(out.Stage)+" "+mark)
	}
	line := strings.Join(parts, " ")
	if !it.CompletedAt.IsZero() && !it.StartedAt.IsZero() {
		line += "  " + dimStyle.Render(formatDuration(it.CompletedAt.Sub(it.StartedAt)))
	}
	return line
}

func renderIteration(it *models.IterationRecord) string {
	var b strings.Builder
	for _, out := range it.Outcomes() {
		status := "passed"
		if !out.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "%s: %s in %s\n", out.Stage, status, formatDuration(out.Duration))
		if out.Tests != nil {
			fmt.Fprintf(&b, "  tests: %d discovered, %d passed, %d failed\n", out.Tests.Discovered, out.Tests.Passed, out.Tests.Failed)
		}
		if out.Validation != nil {
			for _, w := range out.Validation.Warnings {
				fmt.Fprintf(&b, "  warning: %s %s: %s\n", w.Kind, w.FilePath, w.Detail)
			}
		}
		for _, e := range out.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
		if out.RawLog != "" {
			b.WriteString("  log:\n")
			for _, line := range strings.Split(strings.TrimRight(out.RawLog, "\n"), "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
	}
	if len(it.ErrorContext) > 0 {
		b.WriteString("\nFed to the next attempt:\n")
		for _, e := range it.ErrorContext {
			fmt.Fprintf(&b, "  [%s/%s] %s %s\n", e.Stage, e.IssueKind, e.FilePath, e.Detail)
		}
	}
	return b.String()
}

func (a *App) renderFiles() string {
	if len(a.selected.FinalFiles) == 0 {
		return "(no files)"
	}
	tree, err := scaffold.Tree(a.selected.Spec.ProjectName, a.selected.FinalFiles)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return tree
}

func (a *App) viewPager(title string) string {
	return titleStyle.Render(title) + "\n\n" + a.pager.View() + "\n" +
		helpStyle.Render("[↑/↓/pgup/pgdn] scroll  [esc] back")
}

func (a *App) viewTemplates() string {
	s := titleStyle.Render("Templates") + "\n\n"

	if len(a.templates) == 0 {
		s += "  (no templates found)\n"
	}
	for _, t := range a.templates {
		s += fmt.Sprintf("  • %-16s %-8s %s\n", t.ID, t.Language, dimStyle.Render(t.Description))
	}

	s += "\n" + helpStyle.Render("[esc] back")

	return s
}

// Messages

type sessionsLoadedMsg struct {
	sessions []*models.SessionSummary
	err      error
}

type sessionDetailMsg struct {
	session *models.SessionResult
	err     error
}

type sessionDeletedMsg struct {
	id  string
	err error
}

// Commands

func (a *App) loadSessions() tea.Msg {
	sessions, err := a.sessions.ListSessions(50)
	return sessionsLoadedMsg{sessions: sessions, err: err}
}

func (a *App) loadSession(id string) tea.Cmd {
	return func() tea.Msg {
		sess, err := a.sessions.GetSession(id)
		return sessionDetailMsg{session: sess, err: err}
	}
}

func (a *App) deleteSession(id string) tea.Cmd {
	return func() tea.Msg {
		if err := a.sessions.DeleteSession(id); err != nil {
			return sessionDeletedMsg{err: err}
		}
		return sessionDeletedMsg{id: id}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
