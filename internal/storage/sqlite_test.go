package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/foundry/internal/models"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "foundry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sessionResult(t *testing.T, id string, started time.Time) *models.SessionResult {
	t.Helper()
	files := models.FileSet{}
	require.NoError(t, files.Add("src/main.py", "app = 1\n"))
	require.NoError(t, files.Add("requirements.txt", "fastapi\n"))

	return &models.SessionResult{
		ID: id,
		Spec: models.ProjectSpec{
			Requirement:     "todo API",
			Language:        models.LanguagePython,
			TemplateID:      "fastapi",
			ProjectName:     "todo",
			IterationBudget: 3,
			StageTimeout:    90 * time.Second,
		},
		Status:     models.SessionStatusSuccess,
		FinalFiles: files,
		Iterations: []models.IterationRecord{
			{
				Index:    1,
				Generate: &models.StageOutcome{Stage: models.StageGenerate, Success: true, FileCount: 2},
				Build: &models.StageOutcome{
					Stage:  models.StageBuild,
					Errors: []string{"SyntaxError: line 4"},
					Issues: []models.ErrorSummary{{Stage: models.StageBuild, IssueKind: "syntax", Detail: "SyntaxError: line 4"}},
				},
				ErrorContext: []models.ErrorSummary{{Stage: models.StageBuild, IssueKind: "syntax", Detail: "SyntaxError: line 4"}},
			},
			{Index: 2, OverallSuccess: true},
		},
		MergedDependencies: []string{"fastapi", "uvicorn"},
		Markers:            models.TemplateMarkers{HasDockerfile: true},
		StartedAt:          started,
		CompletedAt:        started.Add(time.Minute),
	}
}

func TestSaveAndGetSession(t *testing.T) {
	s := newStorage(t)
	started := time.Now().Add(-time.Hour).Truncate(time.Second)
	want := sessionResult(t, "abc", started)

	require.NoError(t, s.SaveSession(context.Background(), want))

	got, err := s.GetSession("abc")
	require.NoError(t, err)
	assert.Equal(t, want.Spec, got.Spec)
	assert.Equal(t, models.SessionStatusSuccess, got.Status)
	assert.Equal(t, []string{"fastapi", "uvicorn"}, got.MergedDependencies)
	assert.True(t, got.Markers.HasDockerfile)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, []string{"requirements.txt", "src/main.py"}, got.FinalFiles.Paths())
	assert.Equal(t, "app = 1\n", got.FinalFiles["src/main.py"].Content)
	assert.Equal(t, "python", got.FinalFiles["src/main.py"].Language)

	require.Len(t, got.Iterations, 2)
	assert.Equal(t, models.StageBuild, got.Iterations[0].FailedStage())
	assert.Equal(t, "SyntaxError: line 4", got.Iterations[0].ErrorContext[0].Detail)
	assert.True(t, got.Iterations[1].OverallSuccess)
}

func TestSaveSession_Replaces(t *testing.T) {
	s := newStorage(t)
	result := sessionResult(t, "abc", time.Now())
	require.NoError(t, s.SaveSession(context.Background(), result))

	result.Status = models.SessionStatusFailedExhausted
	result.Iterations = result.Iterations[:1]
	delete(result.FinalFiles, "requirements.txt")
	require.NoError(t, s.SaveSession(context.Background(), result))

	got, err := s.GetSession("abc")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailedExhausted, got.Status)
	assert.Len(t, got.Iterations, 1)
	assert.Equal(t, []string{"src/main.py"}, got.FinalFiles.Paths())
}

func TestListSessions(t *testing.T) {
	s := newStorage(t)
	now := time.Now()
	require.NoError(t, s.SaveSession(context.Background(), sessionResult(t, "old", now.Add(-2*time.Hour))))
	faulted := sessionResult(t, "new", now.Add(-time.Hour))
	faulted.Status = models.SessionStatusFailedFault
	faulted.Fault = "generation fault: bad key"
	require.NoError(t, s.SaveSession(context.Background(), faulted))

	sessions, err := s.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, "generation fault: bad key", sessions[0].Fault)
	assert.Equal(t, 2, sessions[0].Iterations)
	require.NotNil(t, sessions[0].CompletedAt)
	assert.Equal(t, "old", sessions[1].ID)

	limited, err := s.ListSessions(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	sum, err := s.GetSummary("old")
	require.NoError(t, err)
	assert.Equal(t, models.LanguagePython, sum.Language)
}

func TestDeleteSession(t *testing.T) {
	s := newStorage(t)
	require.NoError(t, s.SaveSession(context.Background(), sessionResult(t, "abc", time.Now())))

	require.NoError(t, s.DeleteSession("abc"))

	_, err := s.GetSession("abc")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	files, err := s.GetFiles("abc")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", FormatTimeAgo(time.Now()))
	assert.Equal(t, "5m ago", FormatTimeAgo(time.Now().Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", FormatTimeAgo(time.Now().Add(-3*time.Hour-time.Second)))
}
