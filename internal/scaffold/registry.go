// Package scaffold renders project templates into initial file sets.
package scaffold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mpataki/foundry/internal/manifest"
	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/stage"
)

type Template struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Language    models.Language   `yaml:"language"`
	Files       map[string]string `yaml:"files"`
}

// Registry holds the built-in templates plus any loaded from disk.
// User templates override built-ins with the same ID.
type Registry struct {
	templates map[string]*Template
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger, dirs ...string) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		templates: make(map[string]*Template),
		logger:    logger.Named("scaffold"),
	}
	for _, t := range builtinTemplates() {
		r.templates[t.ID] = t
	}

	user, err := LoadAll(dirs)
	if err != nil {
		return nil, err
	}
	for id, t := range user {
		r.logger.Debug("loaded user template", zap.String("template", id))
		r.templates[id] = t
	}
	return r, nil
}

func (r *Registry) Get(id string) (*Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// List returns all templates ordered by ID.
func (r *Registry) List() []*Template {
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Scaffold renders templateID for projectName.
func (r *Registry) Scaffold(ctx context.Context, projectName, templateID string) (*stage.ScaffoldResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTemplate, templateID)
	}

	files, err := t.Render(projectName)
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", templateID, err)
	}
	deps, err := manifest.Dependencies(files, t.Language)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}

	r.logger.Info("scaffolded project",
		zap.String("project", projectName),
		zap.String("template", templateID),
		zap.Int("files", len(files)),
		zap.Int("dependencies", len(deps)))

	return &stage.ScaffoldResult{
		Files:                files,
		DeclaredDependencies: deps,
		Markers:              Markers(files),
	}, nil
}

// Render substitutes the project name into template paths and contents.
func (t *Template) Render(projectName string) (models.FileSet, error) {
	replacer := newReplacer(projectName)
	files := make(models.FileSet, len(t.Files))
	for p, content := range t.Files {
		if err := files.Add(replacer.Replace(p), replacer.Replace(content)); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func newReplacer(projectName string) *strings.Replacer {
	module := strings.ReplaceAll(projectName, "-", "_")
	dist := strings.ReplaceAll(projectName, "_", "-")
	javaName := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(projectName))
	return strings.NewReplacer(
		placeholderModule, module,
		placeholderDist, dist,
		placeholderJavaPkg, "com."+javaName,
		placeholderJavaPath, "com/"+javaName,
	)
}

// Markers reports the optional artifacts present in files.
func Markers(files models.FileSet) models.TemplateMarkers {
	var m models.TemplateMarkers
	for p := range files {
		switch {
		case p == "Dockerfile" || strings.HasSuffix(p, "/Dockerfile"):
			m.HasDockerfile = true
		case strings.HasPrefix(p, ".github/workflows/"), p == ".gitlab-ci.yml", p == "Jenkinsfile":
			m.HasCI = true
		}
	}
	return m
}

// Parse reads a single YAML template file.
func Parse(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template YAML: %w", err)
	}
	if t.Language == "" {
		t.Language = models.LanguagePython
	}
	return &t, nil
}

// LoadAll reads every *.yaml and *.yml template in dirs. Missing
// directories are skipped.
func LoadAll(dirs []string) (map[string]*Template, error) {
	templates := make(map[string]*Template)

	for _, dir := range dirs {
		if err := loadFromDir(dir, templates); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return templates, nil
}

func loadFromDir(dir string, templates map[string]*Template) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		t, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := Validate(t); err != nil {
			return fmt.Errorf("invalid template %s: %w", path, err)
		}

		// Use the template id from the file, or the filename without extension
		if t.ID == "" {
			t.ID = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		templates[t.ID] = t
	}

	return nil
}

func Validate(t *Template) error {
	switch t.Language {
	case models.LanguagePython, models.LanguageJava, models.LanguageKotlin:
	default:
		return fmt.Errorf("unsupported language %q", t.Language)
	}
	if len(t.Files) == 0 {
		return fmt.Errorf("template must define at least one file")
	}
	for p := range t.Files {
		if _, err := models.NormalizePath(p); err != nil {
			return err
		}
	}
	return nil
}
