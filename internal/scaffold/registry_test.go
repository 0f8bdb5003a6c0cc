package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/validator"
)

func TestScaffold_FastAPI(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	res, err := r.Scaffold(context.Background(), "todo", "fastapi")
	require.NoError(t, err)

	assert.True(t, res.Files.Has("requirements.txt"))
	assert.True(t, res.Files.Has("src/main.py"))
	assert.Contains(t, res.DeclaredDependencies, "fastapi==0.104.1")
	assert.Contains(t, res.DeclaredDependencies, "pytest==7.4.3")
	assert.True(t, res.Markers.HasDockerfile)
	assert.True(t, res.Markers.HasCI)

	cfg, ok := res.Files.Get("src/config.py")
	require.True(t, ok)
	assert.Contains(t, cfg.Content, `"APP_NAME", "todo"`)
	assert.NotContains(t, cfg.Content, "mypackage")
}

func TestScaffold_BuiltinsAreValid(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	v := validator.New(validator.Options{UnresolvedImports: validator.PolicyError}, nil)

	for _, tmpl := range r.List() {
		t.Run(tmpl.ID, func(t *testing.T) {
			res, err := r.Scaffold(context.Background(), "todo", tmpl.ID)
			require.NoError(t, err)
			report := v.Validate(res.Files, tmpl.Language)
			assert.Empty(t, report.Errors)
		})
	}
}

func TestScaffold_SpringBootSubstitutesPackagePaths(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	res, err := r.Scaffold(context.Background(), "todo-app", "spring_boot")
	require.NoError(t, err)

	app, ok := res.Files.Get("src/main/java/com/todoapp/Application.java")
	require.True(t, ok)
	assert.Contains(t, app.Content, "package com.todoapp;")
	assert.False(t, res.Files.HasDir("src/main/java/com/example"))
	assert.Contains(t, res.DeclaredDependencies, "org.springframework.boot:spring-boot-starter-web")
	assert.True(t, res.Markers.HasDockerfile)
	assert.False(t, res.Markers.HasCI)

	pom, _ := res.Files.Get("pom.xml")
	assert.Contains(t, pom.Content, "<artifactId>todo-app</artifactId>")
}

func TestScaffold_UnknownTemplate(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	_, err = r.Scaffold(context.Background(), "todo", "rails")
	assert.ErrorIs(t, err, models.ErrUnknownTemplate)
}

func TestNewRegistry_LoadsUserTemplates(t *testing.T) {
	dir := t.TempDir()
	content := "name: Flask API\ndescription: Minimal Flask app\nlanguage: python\nfiles:\n  app.py: \"from flask import Flask\\n\"\n  requirements.txt: \"flask\\n\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flask.yaml"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	r, err := NewRegistry(nil, dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)

	tmpl, ok := r.Get("flask")
	require.True(t, ok)
	assert.Equal(t, "Flask API", tmpl.Name)

	res, err := r.Scaffold(context.Background(), "demo", "flask")
	require.NoError(t, err)
	assert.Equal(t, []string{"flask"}, res.DeclaredDependencies)
	assert.Len(t, r.List(), 4)
}

func TestNewRegistry_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	content := "language: python\nfiles:\n  ../evil.py: \"\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte(content), 0644))

	_, err := NewRegistry(nil, dir)
	assert.ErrorIs(t, err, models.ErrInvalidPath)
}

func TestTree(t *testing.T) {
	fs := models.FileSet{}
	require.NoError(t, fs.Add("src/main.py", ""))
	require.NoError(t, fs.Add("src/utils.py", ""))
	require.NoError(t, fs.Add("README.md", ""))

	out, err := Tree("todo", fs)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "todo\n"))
	assert.Contains(t, out, "├── README.md")
	assert.Contains(t, out, "└── src")
	assert.Contains(t, out, "├── main.py")
	assert.Contains(t, out, "└── utils.py")
}
