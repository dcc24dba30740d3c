// Package extract unpacks downloaded chat archives into per-conversation
// directories. A conversation's media and text end up in one directory
// regardless of whether the export arrived zipped or as a loose text file.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/chatlog"
	"github.com/starford/ansuz/internal/models"
)

// Extractor unpacks archives and relocates loose export files under a
// single extraction root.
type Extractor struct {
	root   string
	logger *slog.Logger
}

// New creates an Extractor rooted at dir.
func New(dir string, logger *slog.Logger) *Extractor {
	return &Extractor{root: dir, logger: logger}
}

// Root returns the extraction root directory.
func (e *Extractor) Root() string { return e.root }

// Unzip unpacks every entry of the archive into the conversation directory
// derived from the archive name, overwriting existing files. Re-running on
// the same archive produces the same tree. Entries under macOS metadata
// directories are skipped outright.
func (e *Extractor) Unzip(zipPath string) (string, error) {
	dest := filepath.Join(e.root, models.DeriveName(zipPath))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("extract: mkdir %s: %w", dest, err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("extract: open %s: %w", zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if skipEntry(f.Name) {
			continue
		}
		if err := e.writeEntry(dest, f); err != nil {
			return "", err
		}
	}

	e.logger.Info("extracted archive",
		slog.String("archive", filepath.Base(zipPath)),
		slog.String("dest", dest),
		slog.Int("entries", len(r.File)))
	return dest, nil
}

// RelocateText moves a loose export text file into its own conversation
// directory under the extraction root, creating the directory if absent.
func (e *Extractor) RelocateText(txtPath string) (string, error) {
	dest := filepath.Join(e.root, models.DeriveName(txtPath))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("extract: mkdir %s: %w", dest, err)
	}

	target := filepath.Join(dest, filepath.Base(txtPath))
	if err := os.Rename(txtPath, target); err != nil {
		return "", fmt.Errorf("extract: move %s: %w", txtPath, err)
	}

	e.logger.Info("relocated loose export",
		slog.String("file", filepath.Base(txtPath)),
		slog.String("dest", dest))
	return dest, nil
}

// writeEntry extracts one archive entry, rejecting paths that escape the
// destination directory.
func (e *Extractor) writeEntry(dest string, f *zip.File) error {
	target := filepath.Join(dest, filepath.Clean(f.Name))
	if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return fmt.Errorf("extract: entry escapes destination: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("extract: mkdir entry %s: %w", f.Name, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract: mkdir parent %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("extract: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("extract: create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extract: write %s: %w", target, err)
	}
	return nil
}

// skipEntry reports whether an archive entry lives under a macOS-metadata
// directory.
func skipEntry(name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if chatlog.Excluded(part) {
			return true
		}
	}
	return false
}
