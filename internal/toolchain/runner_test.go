package toolchain

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/stage"
)

func pyFiles(t *testing.T) models.FileSet {
	t.Helper()
	fs := models.FileSet{}
	require.NoError(t, fs.Add("src/main.py", "print('hi')\n"))
	return fs
}

func newRunner(t *testing.T, cmds Commands) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Options{
		WorkDir:  dir,
		Commands: map[models.Language]Commands{models.LanguagePython: cmds},
	}, nil), dir
}

func TestBuild_Success(t *testing.T) {
	r, workDir := newRunner(t, Commands{Build: "test -f src/main.py"})

	res, err := r.Build(context.Background(), stage.BuildRequest{Files: pyFiles(t), Language: models.LanguagePython, Timeout: 10 * time.Second})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuild_FailureExtractsDiagnostics(t *testing.T) {
	r, _ := newRunner(t, Commands{Build: "echo 'SyntaxError: invalid syntax (src/main.py, line 3)'; exit 1"})

	res, err := r.Build(context.Background(), stage.BuildRequest{Files: pyFiles(t), Language: models.LanguagePython})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"src/main.py:3: SyntaxError: invalid syntax"}, res.Errors)
}

func TestBuild_FailureFallsBackToLogTail(t *testing.T) {
	r, _ := newRunner(t, Commands{Build: "echo 'something broke'; exit 2"})

	res, err := r.Build(context.Background(), stage.BuildRequest{Files: pyFiles(t), Language: models.LanguagePython})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"something broke"}, res.Errors)
}

func TestBuild_InstallSeesDependencies(t *testing.T) {
	r, _ := newRunner(t, Commands{Install: `cat "$FOUNDRY_DEPENDENCIES_FILE"`, Build: "true"})

	res, err := r.Build(context.Background(), stage.BuildRequest{
		Files:        pyFiles(t),
		Dependencies: []string{"fastapi==0.104.1", "httpx"},
		Language:     models.LanguagePython,
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Log, "fastapi==0.104.1\nhttpx")
}

func TestBuild_InstallFailureStopsBuild(t *testing.T) {
	r, _ := newRunner(t, Commands{Install: "exit 3", Build: "echo built"})

	res, err := r.Build(context.Background(), stage.BuildRequest{Files: pyFiles(t), Language: models.LanguagePython})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotContains(t, res.Log, "built")
	assert.Contains(t, res.Errors[0], "exit code 3")
}

func TestBuild_TimeoutKillsProcessGroup(t *testing.T) {
	r, _ := newRunner(t, Commands{Build: "sleep 30 & sleep 30; wait"})

	start := time.Now()
	_, err := r.Build(context.Background(), stage.BuildRequest{
		Files:    pyFiles(t),
		Language: models.LanguagePython,
		Timeout:  200 * time.Millisecond,
	})

	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestBuild_CancelledContext(t *testing.T) {
	r, _ := newRunner(t, Commands{Build: "sleep 30"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Build(ctx, stage.BuildRequest{Files: pyFiles(t), Language: models.LanguagePython})

	assert.ErrorIs(t, err, models.ErrCancelled)
}

func TestBuild_UnknownLanguage(t *testing.T) {
	r := New(Options{}, nil)

	_, err := r.Build(context.Background(), stage.BuildRequest{Files: pyFiles(t), Language: "cobol"})
	assert.Error(t, err)
}

func TestTest_CountsAndFailures(t *testing.T) {
	script := "echo 'FAILED tests/test_main.py::test_create - assert 404 == 201'; echo '1 failed, 2 passed in 0.10s'; exit 1"
	r, _ := newRunner(t, Commands{Test: script})

	res, err := r.Test(context.Background(), stage.TestRequest{Files: pyFiles(t), Language: models.LanguagePython})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Discovered)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"FAILED tests/test_main.py::test_create - assert 404 == 201"}, res.Errors)
}

func TestTest_NoTestsCollectedPasses(t *testing.T) {
	r, _ := newRunner(t, Commands{Test: "echo 'no tests ran in 0.01s'; exit 5"})

	res, err := r.Test(context.Background(), stage.TestRequest{Files: pyFiles(t), Language: models.LanguagePython})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Discovered)
}

func TestCountTests(t *testing.T) {
	surefire := `[INFO] Tests run: 2, Failures: 0, Errors: 0, Skipped: 0, Time elapsed: 0.1 s - in com.todo.AppTest
[INFO] Tests run: 3, Failures: 1, Errors: 0, Skipped: 0, Time elapsed: 0.2 s - in com.todo.TaskTest
[INFO] Results:
[ERROR] Tests run: 5, Failures: 1, Errors: 1, Skipped: 1
`
	assert.Equal(t, models.TestCounts{Discovered: 5, Passed: 2, Failed: 2}, CountTests(surefire, models.LanguageJava))

	pytest := "....s\n=========== 4 passed, 1 skipped, 1 error in 1.02s ===========\n"
	assert.Equal(t, models.TestCounts{Discovered: 6, Passed: 4, Failed: 1}, CountTests(pytest, models.LanguagePython))

	assert.Equal(t, models.TestCounts{}, CountTests("", models.LanguagePython))
}
