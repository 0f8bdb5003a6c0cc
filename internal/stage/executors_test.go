package stage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/validator"
)

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, req GenerateRequest) (models.FileSet, error) {
	args := m.Called(ctx, req)
	files, _ := args.Get(0).(models.FileSet)
	return files, args.Error(1)
}

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*BuildResult)
	return res, args.Error(1)
}

type mockTester struct{ mock.Mock }

func (m *mockTester) Test(ctx context.Context, req TestRequest) (*TestResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*TestResult)
	return res, args.Error(1)
}

type mockScaffolder struct{ mock.Mock }

func (m *mockScaffolder) Scaffold(ctx context.Context, projectName, templateID string) (*ScaffoldResult, error) {
	args := m.Called(ctx, projectName, templateID)
	res, _ := args.Get(0).(*ScaffoldResult)
	return res, args.Error(1)
}

type blockingBuilder struct{}

func (blockingBuilder) Build(ctx context.Context, _ BuildRequest) (*BuildResult, error) {
	<-ctx.Done()
	return &BuildResult{Log: "partial output"}, ctx.Err()
}

func pythonInput(t *testing.T, files map[string]string) Input {
	t.Helper()
	fs := models.FileSet{}
	for p, c := range files {
		require.NoError(t, fs.Add(p, c))
	}
	return Input{
		Spec: models.ProjectSpec{
			Requirement:  "todo api",
			Language:     models.LanguagePython,
			ProjectName:  "todo",
			StageTimeout: time.Second,
		},
		Iteration: 1,
		Files:     fs,
	}
}

func TestScaffoldExecutor_NoResultIsFatal(t *testing.T) {
	sc := &mockScaffolder{}
	sc.On("Scaffold", mock.Anything, "todo", mock.Anything).Return(nil, nil)

	out, err := (&ScaffoldExecutor{Scaffolder: sc}).Execute(context.Background(), pythonInput(t, nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scaffolder returned no result")
	assert.False(t, out.Success)
	assert.Equal(t, models.StageScaffold, out.Stage)
	sc.AssertExpectations(t)
}

func TestGenerateExecutor_Success(t *testing.T) {
	gen := &mockGenerator{}
	files := models.FileSet{}
	require.NoError(t, files.Add("main.py", "print(1)\n"))
	require.NoError(t, files.Add("requirements.txt", "fastapi\nhttpx\n"))
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return req.Requirement == "todo api" && req.Iteration == 1
	})).Return(files, nil)

	out, err := (&GenerateExecutor{Generator: gen}).Execute(context.Background(), pythonInput(t, nil))

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.FileCount)
	assert.Equal(t, []string{"fastapi", "httpx"}, out.Dependencies)
	gen.AssertExpectations(t)
}

func TestGenerateExecutor_RecoverableError(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("model returned unparseable output"))

	out, err := (&GenerateExecutor{Generator: gen}).Execute(context.Background(), pythonInput(t, nil))

	require.NoError(t, err)
	assert.False(t, out.Success)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, models.StageGenerate, out.Issues[0].Stage)
}

func TestGenerateExecutor_FaultIsFatal(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: invalid api key", models.ErrGenerationFault))

	out, err := (&GenerateExecutor{Generator: gen}).Execute(context.Background(), pythonInput(t, nil))

	assert.ErrorIs(t, err, models.ErrGenerationFault)
	assert.False(t, out.Success)
	assert.Equal(t, models.StageGenerate, out.Stage)
}

func TestGenerateExecutor_RejectsUnnormalizedPaths(t *testing.T) {
	gen := &mockGenerator{}
	files := models.FileSet{"../escape.py": &models.GeneratedFile{Path: "../escape.py"}}
	gen.On("Generate", mock.Anything, mock.Anything).Return(files, nil)

	_, err := (&GenerateExecutor{Generator: gen}).Execute(context.Background(), pythonInput(t, nil))

	assert.ErrorIs(t, err, models.ErrInvalidPath)
}

func TestValidateExecutor_ReportsCycle(t *testing.T) {
	in := pythonInput(t, map[string]string{"a.py": "import b\n", "b.py": "import a\n"})

	out, err := (&ValidateExecutor{Validator: validator.New(validator.Options{}, nil)}).Execute(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, out.Success)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, string(models.IssueCircularDependency), out.Issues[0].IssueKind)
	assert.Equal(t, "a.py", out.Issues[0].FilePath)
	require.NotNil(t, out.Validation)
}

func TestBuildExecutor_FailureBecomesIssues(t *testing.T) {
	b := &mockBuilder{}
	b.On("Build", mock.Anything, mock.Anything).
		Return(&BuildResult{Success: false, Errors: []string{"SyntaxError: line 4"}, Log: "raw"}, nil)

	in := pythonInput(t, map[string]string{"main.py": ""})
	in.Dependencies = []string{"fastapi"}
	out, err := (&BuildExecutor{Builder: b}).Execute(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "raw", out.RawLog)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, models.StageBuild, out.Issues[0].Stage)
	assert.Equal(t, "syntax", out.Issues[0].IssueKind)
	assert.Contains(t, out.Issues[0].Detail, "line 4")

	req := b.Calls[0].Arguments.Get(1).(BuildRequest)
	assert.Equal(t, []string{"fastapi"}, req.Dependencies)
	assert.Equal(t, time.Second, req.Timeout)
}

func TestBuildExecutor_Timeout(t *testing.T) {
	in := pythonInput(t, map[string]string{"main.py": ""})
	in.Spec.StageTimeout = 20 * time.Millisecond

	out, err := (&BuildExecutor{Builder: blockingBuilder{}}).Execute(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, []string{"Timeout"}, out.Errors)
	assert.Equal(t, "partial output", out.RawLog)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "timeout", out.Issues[0].IssueKind)
}

func TestBuildExecutor_CancelledIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&BuildExecutor{Builder: blockingBuilder{}}).Execute(ctx, pythonInput(t, nil))

	assert.ErrorIs(t, err, models.ErrCancelled)
}

func TestTestExecutor_Counts(t *testing.T) {
	tester := &mockTester{}
	tester.On("Test", mock.Anything, mock.Anything).
		Return(&TestResult{Success: false, Discovered: 3, Passed: 2, Failed: 1,
			Errors: []string{"FAILED tests/test_main.py::test_create - assert 404 == 201"}}, nil)

	out, err := (&TestExecutor{Tester: tester}).Execute(context.Background(), pythonInput(t, nil))

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, &models.TestCounts{Discovered: 3, Passed: 2, Failed: 1}, out.Tests)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "tests/test_main.py", out.Issues[0].FilePath)
	assert.Equal(t, "logic", out.Issues[0].IssueKind)
}

func TestTestExecutor_NoTestsPasses(t *testing.T) {
	tester := &mockTester{}
	tester.On("Test", mock.Anything, mock.Anything).Return(&TestResult{Success: true}, nil)

	out, err := (&TestExecutor{Tester: tester}).Execute(context.Background(), pythonInput(t, nil))

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Tests.Discovered)
}
