// Package pipeline orchestrates one invocation of the scraper:
// fetch -> extract -> parse -> anonymize -> stage. All run state lives on
// an explicit Run object created fresh per invocation and discarded at run
// end; there are no module-level "already set up" flags.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/anonymize"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/chatlog"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/fetch"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/stage"
)

// MediaUploader pushes one media file to remote storage and returns its
// content-addressed key. *media.Store is the production implementation.
type MediaUploader interface {
	PutFile(ctx context.Context, path string) (string, error)
}

// Run is the context object for one pipeline invocation.
type Run struct {
	id          string
	logger      *slog.Logger
	fetcher     *fetch.Fetcher
	extractor   *extract.Extractor
	codec       *anonymize.Codec
	stager      *stage.Stager
	cat         *catalog.DB
	media       MediaUploader
	dateOrder   chatlog.DateOrder
	downloadDir string
}

// Option is a functional option for configuring a Run.
type Option func(*Run)

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option { return func(r *Run) { r.logger = l } }

// WithFetcher sets the archive fetcher.
func WithFetcher(f *fetch.Fetcher) Option { return func(r *Run) { r.fetcher = f } }

// WithExtractor sets the archive extractor.
func WithExtractor(e *extract.Extractor) Option { return func(r *Run) { r.extractor = e } }

// WithCodec sets the anonymization codec.
func WithCodec(c *anonymize.Codec) Option { return func(r *Run) { r.codec = c } }

// WithStager sets the JSON stager.
func WithStager(s *stage.Stager) Option { return func(r *Run) { r.stager = s } }

// WithCatalog sets the local scrape catalog.
func WithCatalog(db *catalog.DB) Option { return func(r *Run) { r.cat = db } }

// WithMedia sets the optional media uploader.
func WithMedia(m MediaUploader) Option { return func(r *Run) { r.media = m } }

// WithDateOrder sets the export date ordering.
func WithDateOrder(o chatlog.DateOrder) Option { return func(r *Run) { r.dateOrder = o } }

// WithDownloadDir sets the download root.
func WithDownloadDir(dir string) Option { return func(r *Run) { r.downloadDir = dir } }

// NewRun builds a Run for one invocation. Every run gets a fresh id that
// tags its log lines.
func NewRun(opts ...Option) (*Run, error) {
	r := &Run{
		id:        uuid.NewString(),
		logger:    slog.Default(),
		dateOrder: chatlog.DayFirst,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With(slog.String("run", r.id))
	return r, nil
}

// Scrape lists remote archives, downloads them one at a time, records each
// in the catalog with its MD5, and extracts into per-conversation
// directories. One file's failure never aborts its siblings.
func (r *Run) Scrape(ctx context.Context) error {
	if r.fetcher == nil {
		return fmt.Errorf("pipeline: no fetcher configured")
	}

	files, err := r.fetcher.ListArchives(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: list archives: %w", err)
	}
	r.logger.Info("remote listing complete", slog.Int("actionable", len(files)))

	paths := r.fetcher.DownloadAll(ctx, files)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.recordDownload(path)
		if _, err := r.extractPath(path); err != nil {
			r.logger.Warn("extract failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// WatchDownloads watches the download directory and extracts archives as
// they arrive, after a catch-up pass over whatever is already there. It
// blocks until ctx is cancelled.
func (r *Run) WatchDownloads(ctx context.Context) error {
	if err := os.MkdirAll(r.downloadDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: mkdir download dir: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return extract.Watch(gCtx, r.extractor, r.downloadDir, r.logger, func(source, dest string) {
			r.recordDownload(source)
		})
	})

	g.Go(func() error {
		r.catchUp(gCtx)
		return nil
	})

	return g.Wait()
}

// StageAll parses every extracted conversation, anonymizes authors, stages
// one JSON batch per conversation, and records the batches in the catalog.
func (r *Run) StageAll(ctx context.Context) ([]string, error) {
	if r.codec == nil || r.stager == nil || r.extractor == nil {
		return nil, fmt.Errorf("pipeline: staging requires extractor, codec and stager")
	}

	convs, err := r.conversations()
	if err != nil {
		return nil, err
	}
	r.logger.Info("staging conversations", slog.Int("count", len(convs)))

	var staged []string
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		path, err := r.stageConversation(ctx, conv)
		if err != nil {
			r.logger.Warn("staging failed, continuing",
				slog.String("conversation", conv.Name),
				slog.String("error", err.Error()))
			continue
		}
		if path != "" {
			staged = append(staged, path)
		}
	}
	return staged, nil
}

// stageConversation runs parse -> anonymize -> media -> stage for one
// conversation directory.
func (r *Run) stageConversation(ctx context.Context, conv models.Conversation) (string, error) {
	var msgs []models.Message
	for _, file := range conv.Files {
		if !strings.HasSuffix(file, ".txt") {
			continue
		}
		parsed, err := r.parseFile(file)
		if err != nil {
			r.logger.Warn("unreadable export file",
				slog.String("path", file),
				slog.String("error", err.Error()))
			continue
		}
		msgs = append(msgs, parsed...)
	}

	if len(msgs) == 0 {
		r.logger.Warn("conversation yielded no messages",
			slog.String("conversation", conv.Name),
			slog.String("error", apperr.ErrMalformedInput.Error()))
		return "", nil
	}

	msgs = r.codec.Anonymize(msgs)
	r.uploadMedia(ctx, conv, msgs)

	path, err := r.stager.Stage(conv.Name, msgs)
	if err != nil {
		return "", err
	}

	if r.cat != nil {
		if err := r.cat.RecordBatch(catalog.BatchRecord{
			Path:         path,
			Conversation: conv.Name,
			Messages:     len(msgs),
			StagedAt:     time.Now(),
		}); err != nil {
			r.logger.Warn("catalog record failed", slog.String("error", err.Error()))
		}
	}
	return path, nil
}

// uploadMedia resolves "(file attached)" references against the
// conversation directory and uploads each, one at a time, rewriting the
// message's media reference to the store key. Disabled (nil uploader)
// leaves the file-name references in place.
func (r *Run) uploadMedia(ctx context.Context, conv models.Conversation, msgs []models.Message) {
	if r.media == nil {
		return
	}

	keys := make(map[string]string)
	for i := range msgs {
		if !msgs[i].HasMedia || msgs[i].MediaRef == "" {
			continue
		}
		ref := msgs[i].MediaRef
		key, ok := keys[ref]
		if !ok {
			local := filepath.Join(conv.Dir, ref)
			if _, err := os.Stat(local); err != nil {
				r.logger.Warn("referenced media file missing",
					slog.String("conversation", conv.Name),
					slog.String("ref", ref))
				continue
			}
			key, err := r.media.PutFile(ctx, local)
			if err != nil {
				r.logger.Warn("media upload failed, continuing",
					slog.String("ref", ref),
					slog.String("error", err.Error()))
				continue
			}
			keys[ref] = key
			msgs[i].MediaRef = key
			continue
		}
		msgs[i].MediaRef = key
	}
}

// conversations enumerates the extracted per-conversation directories,
// walking each for its file list up front.
func (r *Run) conversations() ([]models.Conversation, error) {
	root := r.extractor.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("pipeline: extracted dir %s: %w (run scrape first)", root, err)
	}

	var out []models.Conversation
	for _, e := range entries {
		if !e.IsDir() || chatlog.Excluded(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := chatlog.Walk(dir)
		if err != nil {
			r.logger.Warn("walk failed, skipping conversation",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, models.Conversation{
			Name:  models.DeriveName(e.Name()),
			Dir:   dir,
			Files: files,
		})
	}
	return out, nil
}

func (r *Run) parseFile(path string) ([]models.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return chatlog.Parse(f, chatlog.Options{DateOrder: r.dateOrder})
}

// recordDownload computes the archive checksum and upserts the catalog
// row. The hash is informational; nothing consumes it yet.
func (r *Run) recordDownload(path string) {
	if r.cat == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		// Relocated text files no longer live at the download path.
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		r.logger.Warn("stat download failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	sum, err := checksum.MD5File(path)
	if err != nil {
		r.logger.Warn("checksum failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := r.cat.RecordArchive(catalog.ArchiveRecord{
		Name:         filepath.Base(path),
		MD5:          sum,
		Size:         info.Size(),
		DownloadedAt: time.Now(),
	}); err != nil {
		r.logger.Warn("catalog record failed", slog.String("error", err.Error()))
	}
}

// catchUp extracts anything already sitting in the download directory when
// watch mode starts.
func (r *Run) catchUp(ctx context.Context) {
	entries, err := os.ReadDir(r.downloadDir)
	if err != nil {
		r.logger.Warn("catch-up scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(r.downloadDir, e.Name())
		r.recordDownload(path)
		if _, err := r.extractPath(path); err != nil {
			r.logger.Warn("catch-up extract failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}

func (r *Run) extractPath(path string) (string, error) {
	switch {
	case strings.HasSuffix(path, ".zip"):
		return r.extractor.Unzip(path)
	case strings.HasSuffix(path, ".txt"):
		return r.extractor.RelocateText(path)
	}
	return "", nil
}
