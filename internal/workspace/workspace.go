package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/mpataki/foundry/internal/models"
)

// Workspace is the on-disk home of one session: session.json plus the
// final project tree under project/.
type Workspace struct {
	Path        string
	ProjectPath string
}

type SessionMetadata struct {
	SessionID    string               `json:"session_id"`
	ProjectName  string               `json:"project_name"`
	TemplateID   string               `json:"template"`
	Language     models.Language      `json:"language"`
	Requirement  string               `json:"requirement"`
	Status       models.SessionStatus `json:"status"`
	Fault        string               `json:"fault,omitempty"`
	Iterations   int                  `json:"iterations"`
	Dependencies []string             `json:"dependencies"`
	Files        []string             `json:"files"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  time.Time            `json:"completed_at"`
}

// Dir is the workspace directory of a session under baseDir.
func Dir(baseDir, sessionID string) string {
	return filepath.Join(baseDir, "session-"+sessionID)
}

func Create(baseDir, sessionID string) (*Workspace, error) {
	path := Dir(baseDir, sessionID)
	w := &Workspace{
		Path:        path,
		ProjectPath: filepath.Join(path, "project"),
	}

	if err := os.MkdirAll(w.ProjectPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return w, nil
}

func Open(baseDir, sessionID string) (*Workspace, error) {
	path := Dir(baseDir, sessionID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace for session %s does not exist", sessionID)
	}

	return &Workspace{
		Path:        path,
		ProjectPath: filepath.Join(path, "project"),
	}, nil
}

// Remove deletes the workspace of a session. A missing workspace is not an
// error.
func Remove(baseDir, sessionID string) error {
	return os.RemoveAll(Dir(baseDir, sessionID))
}

func (w *Workspace) WriteSessionMetadata(meta *SessionMetadata) error {
	path := filepath.Join(w.Path, "session.json")

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session.json: %w", err)
	}

	return nil
}

func (w *Workspace) ReadSessionMetadata() (*SessionMetadata, error) {
	path := filepath.Join(w.Path, "session.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session.json not found in %s", w.Path)
		}
		return nil, fmt.Errorf("failed to read session.json: %w", err)
	}

	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse session.json: %w", err)
	}

	return &meta, nil
}

// WriteProject replaces the project tree with files.
func (w *Workspace) WriteProject(files models.FileSet) error {
	if err := os.RemoveAll(w.ProjectPath); err != nil {
		return fmt.Errorf("failed to clear project directory: %w", err)
	}
	if err := os.MkdirAll(w.ProjectPath, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	return Materialize(w.ProjectPath, files)
}

// Materialize writes files below dir. Every path is re-checked so nothing
// is written outside dir.
func Materialize(dir string, files models.FileSet) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for _, p := range files.Paths() {
		clean, err := models.NormalizePath(p)
		if err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(clean))
		if !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("%w: %q escapes %s", models.ErrInvalidPath, p, dir)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
		if err := os.WriteFile(target, []byte(files[p].Content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}
	return nil
}

// Sink writes the final project and session.json of every finished session.
type Sink struct {
	BaseDir string
}

func (s *Sink) SaveSession(_ context.Context, result *models.SessionResult) error {
	w, err := Create(s.BaseDir, result.ID)
	if err != nil {
		return err
	}
	if err := w.WriteProject(result.FinalFiles); err != nil {
		return err
	}
	return w.WriteSessionMetadata(MetadataFor(result))
}

func MetadataFor(result *models.SessionResult) *SessionMetadata {
	return &SessionMetadata{
		SessionID:    result.ID,
		ProjectName:  result.Spec.ProjectName,
		TemplateID:   result.Spec.TemplateID,
		Language:     result.Spec.Language,
		Requirement:  result.Spec.Requirement,
		Status:       result.Status,
		Fault:        result.Fault,
		Iterations:   len(result.Iterations),
		Dependencies: result.MergedDependencies,
		Files:        result.FinalFiles.Paths(),
		StartedAt:    result.StartedAt,
		CompletedAt:  result.CompletedAt,
	}
}

// skipDirs are never loaded into a file set, .gitignore or not.
var skipDirs = map[string]bool{
	".git": true, "__pycache__": true, ".venv": true, "venv": true,
	"node_modules": true, "target": true, "build": true, ".pytest_cache": true,
}

const maxLoadedFileBytes = 1 << 20

// LoadDir reads the text files below dir into a file set. Paths matched by
// dir/.gitignore, build output, VCS metadata and files over 1MB are
// skipped.
func LoadDir(dir string) (models.FileSet, error) {
	ign := ignoreRules(dir)
	files := models.FileSet{}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || (ign != nil && ign.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || (ign != nil && ign.MatchesPath(rel)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxLoadedFileBytes {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if bytes.IndexByte(content, 0) >= 0 {
			return nil
		}
		return files.Add(rel, string(content))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", dir, err)
	}
	return files, nil
}

func ignoreRules(dir string) *ignore.GitIgnore {
	ign, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	return ign
}
