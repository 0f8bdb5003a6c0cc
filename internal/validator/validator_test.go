package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mpataki/foundry/internal/models"
)

func fileSet(t *testing.T, files map[string]string) models.FileSet {
	t.Helper()
	fs := models.FileSet{}
	for p, c := range files {
		require.NoError(t, fs.Add(p, c))
	}
	return fs
}

func TestValidate_CleanPythonProject(t *testing.T) {
	fs := fileSet(t, map[string]string{
		"requirements.txt":     "fastapi\n",
		"src/__init__.py":      "",
		"src/main.py":          "from fastapi import FastAPI\nfrom src.routes import router\n",
		"src/routes.py":        "from fastapi import APIRouter\n\nrouter = APIRouter()\n",
		"tests/test_routes.py": "import pytest\nfrom src.routes import router\n",
	})

	report := New(Options{}, nil).Validate(fs, models.LanguagePython)

	assert.True(t, report.Success())
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidate_SelfImportIsCircular(t *testing.T) {
	fs := fileSet(t, map[string]string{"app.py": "import app\n"})

	report := New(Options{}, nil).Validate(fs, models.LanguagePython)

	require.Len(t, report.Errors, 1)
	issue := report.Errors[0]
	assert.Equal(t, models.IssueCircularDependency, issue.Kind)
	assert.Equal(t, "app.py", issue.FilePath)
	assert.Equal(t, "app.py", issue.RelatedPath)
	assert.False(t, report.Success())
}

func TestValidate_MutualPackageImports(t *testing.T) {
	fs := fileSet(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/a.py":        "from pkg import b\n",
		"pkg/b.py":        "from pkg.a import thing\n",
	})

	report := New(Options{}, nil).Validate(fs, models.LanguagePython)

	require.Len(t, report.Errors, 1)
	issue := report.Errors[0]
	assert.Equal(t, models.IssueCircularDependency, issue.Kind)
	assert.Equal(t, "pkg/a.py", issue.FilePath)
	assert.Equal(t, "pkg/b.py", issue.RelatedPath)
	assert.Contains(t, issue.Detail, "pkg/a.py -> pkg/b.py -> pkg/a.py")
}

func TestValidate_UnresolvedPolicy(t *testing.T) {
	fs := fileSet(t, map[string]string{
		"app/__init__.py": "",
		"main.py":         "import app.missing\n",
	})

	warn := New(Options{UnresolvedImports: PolicyWarn}, nil).Validate(fs, models.LanguagePython)
	assert.True(t, warn.Success())
	require.Len(t, warn.Warnings, 1)
	assert.Equal(t, models.IssueUnresolvedImport, warn.Warnings[0].Kind)
	assert.Equal(t, "main.py", warn.Warnings[0].FilePath)

	strict := New(Options{UnresolvedImports: PolicyError}, nil).Validate(fs, models.LanguagePython)
	assert.False(t, strict.Success())
	require.Len(t, strict.Errors, 1)
	assert.Equal(t, models.IssueUnresolvedImport, strict.Errors[0].Kind)
}

func TestValidate_MalformedImport(t *testing.T) {
	fs := fileSet(t, map[string]string{"main.py": "import os\nfrom import x\n"})

	report := New(Options{}, nil).Validate(fs, models.LanguagePython)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.IssueMalformedImport, report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Detail, "line 2")
}

func TestValidate_MissingPackageMarker(t *testing.T) {
	fs := fileSet(t, map[string]string{
		"app/services/users.py": "def get():\n    return 1\n",
		"main.py":               "from app.services.users import get\n",
	})

	report := New(Options{}, nil).Validate(fs, models.LanguagePython)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, models.IssueMissingPackageMarker, report.Errors[0].Kind)
	assert.Equal(t, "app/__init__.py", report.Errors[0].FilePath)
	assert.Equal(t, "main.py", report.Errors[0].RelatedPath)
	assert.Equal(t, "app/services/__init__.py", report.Errors[1].FilePath)
}

func TestValidate_JavaPackagePath(t *testing.T) {
	fs := fileSet(t, map[string]string{
		"pom.xml": "<project/>",
		"src/main/java/com/todo/App.java":        "package com.todo;\n\nimport com.todo.model.Task;\n",
		"src/main/java/com/todo/model/Task.java": "package com.todo.models;\n",
		"src/main/java/com/todo/Util.java":       "public class Util {}\n",
	})

	report := New(Options{}, nil).Validate(fs, models.LanguageJava)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, models.IssuePackagePathMismatch, report.Errors[0].Kind)
	assert.Equal(t, "src/main/java/com/todo/Util.java", report.Errors[0].FilePath)
	assert.Contains(t, report.Errors[0].Detail, "missing package declaration")
	assert.Equal(t, "src/main/java/com/todo/model/Task.java", report.Errors[1].FilePath)
	assert.Contains(t, report.Errors[1].Detail, `"com.todo.models"`)
}

func TestValidate_LogsSummary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fs := fileSet(t, map[string]string{"a.py": "import b\n", "b.py": "import a\n"})

	New(Options{}, zap.New(core)).Validate(fs, models.LanguagePython)

	entries := logs.FilterMessage("validated file set").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["errors"])
	assert.Equal(t, "validator", entries[0].LoggerName)
}
