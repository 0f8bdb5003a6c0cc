package workspace

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/mpataki/foundry/internal/manifest"
	"github.com/mpataki/foundry/internal/models"
)

type Export struct {
	// Root is the top-level directory inside the archive.
	Root         string
	Files        models.FileSet
	Language     models.Language
	Dependencies []string
	ModTime      time.Time
}

// WriteZip writes the export as a zip archive. Python projects without a
// requirements.txt get one listing the merged dependencies.
func WriteZip(w io.Writer, e Export) error {
	files := e.Files.Clone()
	if e.Language == models.LanguagePython && !files.Has(manifest.Requirements) && len(e.Dependencies) > 0 {
		if err := files.Add(manifest.Requirements, strings.Join(e.Dependencies, "\n")+"\n"); err != nil {
			return err
		}
	}

	modTime := e.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}

	zw := zip.NewWriter(w)
	for _, p := range files.Paths() {
		name := p
		if e.Root != "" {
			name = path.Join(e.Root, p)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modTime,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", p, err)
		}
		if _, err := io.WriteString(fw, files[p].Content); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}
