package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a file must stay quiet before it is processed.
// Downloads arrive through many Write events; acting on the first one
// would extract a half-written archive.
const settleDelay = 500 * time.Millisecond

// Handled is called after a watcher-driven extraction, with the archive or
// text file processed and the conversation directory produced.
type Handled func(source, dest string)

// Watch observes the download directory and processes archives as they
// appear: .zip files are unzipped, .txt files relocated. It blocks until
// ctx is cancelled. Per-file failures are logged and do not stop the watch.
func Watch(ctx context.Context, e *Extractor, downloadDir string, logger *slog.Logger, cb Handled) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(downloadDir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", downloadDir))

	// One settle timer per in-flight path.
	pending := make(map[string]*time.Timer)
	ready := make(chan string)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case path := <-ready:
			delete(pending, path)
			dest, procErr := process(e, path)
			if procErr != nil {
				logger.Warn("watcher: process failed",
					slog.String("path", path),
					slog.String("error", procErr.Error()))
				continue
			}
			if dest != "" && cb != nil {
				cb(path, dest)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := ev.Name
			if !actionable(path) {
				continue
			}
			if t, exists := pending[path]; exists {
				t.Reset(settleDelay)
				continue
			}
			p := path
			pending[p] = time.AfterFunc(settleDelay, func() {
				select {
				case ready <- p:
				case <-ctx.Done():
				}
			})

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func process(e *Extractor, path string) (string, error) {
	switch {
	case strings.HasSuffix(path, ".zip"):
		return e.Unzip(path)
	case strings.HasSuffix(path, ".txt"):
		return e.RelocateText(path)
	}
	return "", nil
}

func actionable(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".zip" || ext == ".txt"
}
