package models

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

type GeneratedFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	SizeBytes int    `json:"size_bytes"`
}

// FileSet is a complete project snapshot keyed by normalized path.
type FileSet map[string]*GeneratedFile

// NewFileSet builds a file set from files, normalizing every path. A file
// that names its language keeps it; otherwise it is inferred. Two files
// that normalize to the same path are rejected.
func NewFileSet(files ...*GeneratedFile) (FileSet, error) {
	fs := make(FileSet, len(files))
	for _, f := range files {
		if err := fs.AddNew(f.Path, f.Content); err != nil {
			return nil, err
		}
		if f.Language != "" {
			clean, _ := NormalizePath(f.Path)
			fs[clean].Language = f.Language
		}
	}
	return fs, nil
}

// Add inserts or replaces a file. The language is inferred from the extension.
func (fs FileSet) Add(p, content string) error {
	clean, err := NormalizePath(p)
	if err != nil {
		return err
	}
	fs[clean] = &GeneratedFile{
		Path:      clean,
		Content:   content,
		Language:  LanguageForPath(clean),
		SizeBytes: len(content),
	}
	return nil
}

// AddNew is Add for a path not yet in the set.
func (fs FileSet) AddNew(p, content string) error {
	clean, err := NormalizePath(p)
	if err != nil {
		return err
	}
	if fs.Has(clean) {
		return fmt.Errorf("%w: %q duplicates %s", ErrInvalidPath, p, clean)
	}
	return fs.Add(clean, content)
}

func (fs FileSet) Get(p string) (*GeneratedFile, bool) {
	f, ok := fs[p]
	return f, ok
}

func (fs FileSet) Has(p string) bool {
	_, ok := fs[p]
	return ok
}

// Paths returns all paths in lexical order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasDir reports whether any file lives under dir.
func (fs FileSet) HasDir(dir string) bool {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for p := range fs {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand snapshots across stages.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	for p, f := range fs {
		cp := *f
		out[p] = &cp
	}
	return out
}

// NormalizePath converts p to a forward-slash project-relative path. Paths
// that are absolute, empty or contain ".." segments are rejected.
func NormalizePath(p string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(raw, "/") || (len(raw) > 1 && raw[1] == ':') {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the project root", ErrInvalidPath, p)
		}
	}
	clean := path.Clean(strings.TrimPrefix(raw, "./"))
	if clean == "." || strings.HasSuffix(raw, "/") {
		return "", fmt.Errorf("%w: %q is not a file", ErrInvalidPath, p)
	}
	return clean, nil
}

func LanguageForPath(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".py":
		return string(LanguagePython)
	case ".java":
		return string(LanguageJava)
	case ".kt", ".kts":
		return string(LanguageKotlin)
	case ".md":
		return "markdown"
	case ".yml", ".yaml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".xml":
		return "xml"
	case ".json":
		return "json"
	}
	switch path.Base(p) {
	case "Dockerfile":
		return "dockerfile"
	case "requirements.txt":
		return "requirements"
	}
	return "text"
}
