// Package fetch downloads remote archive files into the local download
// directory.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Source lists remote files and opens download streams. *drive.Client is
// the production implementation; tests substitute their own.
type Source interface {
	ListFiles(ctx context.Context) ([]models.RemoteFile, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// progressStep is how many bytes accrue between progress log lines.
const progressStep = 1 << 20

// Fetcher filters remote listings down to actionable archives and
// downloads them to deterministic local paths.
type Fetcher struct {
	src     Source
	dir     string
	keyword string
	logger  *slog.Logger
}

// New creates a Fetcher writing into dir. keyword is matched by substring
// against remote file names; empty matches everything.
func New(src Source, dir, keyword string, logger *slog.Logger) *Fetcher {
	return &Fetcher{src: src, dir: dir, keyword: keyword, logger: logger}
}

// ListArchives returns the remote files worth downloading: not trashed,
// name contains the archive keyword, and a .zip or .txt suffix.
func (f *Fetcher) ListArchives(ctx context.Context) ([]models.RemoteFile, error) {
	files, err := f.src.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.RemoteFile
	for _, rf := range files {
		if rf.Trashed {
			continue
		}
		if f.keyword != "" && !strings.Contains(rf.Name, f.keyword) {
			continue
		}
		if !strings.HasSuffix(rf.Name, ".zip") && !strings.HasSuffix(rf.Name, ".txt") {
			continue
		}
		out = append(out, rf)
	}
	return out, nil
}

// Download streams one remote file to its deterministic local path,
// creating parent directories as needed and overwriting any previous
// download of the same name. Cumulative progress is logged as bytes
// arrive. On a stream error the local file is left behind and the caller
// may retry; re-invocation overwrites the same path.
func (f *Fetcher) Download(ctx context.Context, file models.RemoteFile) (string, error) {
	path := filepath.Join(f.dir, file.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("fetch: mkdir for %s: %w", file.Name, err)
	}

	src, err := f.src.Download(ctx, file.ID)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("fetch: create %s: %w", path, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, &progressReader{r: src, name: file.Name, logger: f.logger})
	if err != nil {
		return "", fmt.Errorf("fetch: download %s: %w", file.Name, err)
	}

	f.logger.Info("downloaded file",
		slog.String("name", file.Name),
		slog.Int64("bytes", n))
	return path, nil
}

// DownloadAll downloads every file in order, one at a time. Sequential by
// policy: one in-flight remote call keeps backpressure on the drive API,
// the same policy applied to every remote call site in the pipeline. One
// file's failure is logged and does not abort its siblings.
func (f *Fetcher) DownloadAll(ctx context.Context, files []models.RemoteFile) []string {
	var paths []string
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		path, err := f.Download(ctx, file)
		if err != nil {
			f.logger.Warn("download failed",
				slog.String("name", file.Name),
				slog.String("error", err.Error()))
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// progressReader logs cumulative byte progress as a stream is consumed.
type progressReader struct {
	r      io.Reader
	name   string
	logger *slog.Logger
	total  int64
	mark   int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.total += int64(n)
	if p.total-p.mark >= progressStep {
		p.mark = p.total
		p.logger.Debug("downloading",
			slog.String("name", p.name),
			slog.Int64("bytes", p.total))
	}
	return n, err
}
