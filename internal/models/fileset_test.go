package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "src/main.py", want: "src/main.py"},
		{in: "./src//main.py", want: "src/main.py"},
		{in: `src\app\main.py`, want: "src/app/main.py"},
		{in: " README.md ", want: "README.md"},
		{in: "", err: true},
		{in: "/etc/passwd", err: true},
		{in: "C:/x.py", err: true},
		{in: "../x.py", err: true},
		{in: "src/../../x.py", err: true},
		{in: "src/", err: true},
		{in: ".", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePath(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSet(t *testing.T) {
	fs := FileSet{}
	require.NoError(t, fs.Add("./app/main.py", "x = 1\n"))
	require.NoError(t, fs.Add("pom.xml", "<project/>"))
	assert.ErrorIs(t, fs.Add("../evil.py", ""), ErrInvalidPath)

	f, ok := fs.Get("app/main.py")
	require.True(t, ok)
	assert.Equal(t, "python", f.Language)
	assert.Equal(t, 6, f.SizeBytes)
	assert.Equal(t, []string{"app/main.py", "pom.xml"}, fs.Paths())
	assert.True(t, fs.HasDir("app"))
	assert.True(t, fs.HasDir("app/"))
	assert.False(t, fs.HasDir("ap"))

	clone := fs.Clone()
	clone["app/main.py"].Content = "changed"
	assert.Equal(t, "x = 1\n", fs["app/main.py"].Content)
}

func TestNewFileSet(t *testing.T) {
	fs, err := NewFileSet(
		&GeneratedFile{Path: "./build.gradle.kts", Content: "plugins {}"},
		&GeneratedFile{Path: "Makefile", Content: "all:", Language: "make"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Makefile", "build.gradle.kts"}, fs.Paths())
	assert.Equal(t, "kotlin", fs["build.gradle.kts"].Language)
	assert.Equal(t, "make", fs["Makefile"].Language)

	_, err = NewFileSet(&GeneratedFile{Path: "/abs.py"})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = NewFileSet(
		&GeneratedFile{Path: "./a.py", Content: "x = 1"},
		&GeneratedFile{Path: "a.py", Content: "x = 2"},
	)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestFileSet_AddNew(t *testing.T) {
	fs := FileSet{}
	require.NoError(t, fs.AddNew("src/a.py", "x = 1\n"))
	assert.ErrorIs(t, fs.AddNew("./src//a.py", "x = 2\n"), ErrInvalidPath)
	assert.ErrorIs(t, fs.AddNew("../a.py", ""), ErrInvalidPath)
	assert.Equal(t, "x = 1\n", fs["src/a.py"].Content)

	require.NoError(t, fs.Add("./src/a.py", "x = 3\n"))
	assert.Equal(t, "x = 3\n", fs["src/a.py"].Content)
}

func TestProjectSpec_Validate(t *testing.T) {
	valid := ProjectSpec{
		Requirement:     "A todo API",
		Language:        LanguagePython,
		TemplateID:      "fastapi",
		ProjectName:     "todo",
		IterationBudget: 3,
		StageTimeout:    time.Minute,
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*ProjectSpec){
		"no requirement": func(s *ProjectSpec) { s.Requirement = "" },
		"bad language":   func(s *ProjectSpec) { s.Language = "cobol" },
		"zero budget":    func(s *ProjectSpec) { s.IterationBudget = 0 },
		"huge budget":    func(s *ProjectSpec) { s.IterationBudget = 11 },
		"slash in name":  func(s *ProjectSpec) { s.ProjectName = "a/b" },
		"no timeout":     func(s *ProjectSpec) { s.StageTimeout = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}
