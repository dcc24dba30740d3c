package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/ansuz/internal/anonymize"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/chatlog"
	"github.com/starford/ansuz/internal/drive"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/fetch"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/stage"
	"github.com/starford/ansuz/internal/strapi"
	"github.com/starford/ansuz/internal/syncer"
)

// application holds the assembled dependencies for one command invocation.
type application struct {
	config *Config
}

// Option configures the application.
type Option func(*application)

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(app *application) {
		app.config = cfg
	}
}

// setup applies options and installs the JSON logger.
func setup(opts ...Option) (*Config, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	return app.config, logger, nil
}

// Scrape downloads chat archives from the configured drive folder and
// extracts them. With watch set it instead blocks, extracting archives as
// they land in the download directory, until the context is cancelled.
func Scrape(ctx context.Context, watch bool, opts ...Option) error {
	cfg, logger, err := setup(opts...)
	if err != nil {
		return err
	}

	logger.Info("scrape starting",
		slog.String("download_dir", cfg.Layout.DownloadDir),
		slog.String("extract_dir", cfg.Layout.ExtractDir),
		slog.Bool("watch", watch))

	if err := os.MkdirAll(cfg.Layout.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	extractor := extract.New(cfg.Layout.ExtractDir, logger)

	runOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithExtractor(extractor),
		pipeline.WithCatalog(cat),
		pipeline.WithDownloadDir(cfg.Layout.DownloadDir),
	}

	if watch {
		run, err := pipeline.NewRun(runOpts...)
		if err != nil {
			return err
		}
		return run.WatchDownloads(ctx)
	}

	src, err := drive.NewClient(ctx, cfg.Drive.CredentialsFile, cfg.Drive.PageSize)
	if err != nil {
		return fmt.Errorf("init drive client: %w", err)
	}
	fetcher := fetch.New(src, cfg.Layout.DownloadDir, cfg.Drive.ArchiveKeyword, logger)

	run, err := pipeline.NewRun(append(runOpts, pipeline.WithFetcher(fetcher))...)
	if err != nil {
		return err
	}
	return run.Scrape(ctx)
}

// Stage parses the extracted conversations, anonymizes authors, and writes
// one JSON batch per conversation into the staging directory.
func Stage(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts...)
	if err != nil {
		return err
	}

	codec, err := anonymize.New(cfg.Anonymizer.Secret)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	runOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithExtractor(extract.New(cfg.Layout.ExtractDir, logger)),
		pipeline.WithCodec(codec),
		pipeline.WithStager(stage.New(cfg.Layout.StagingDir, stage.Replace, logger)),
		pipeline.WithCatalog(cat),
		pipeline.WithDateOrder(dateOrder(cfg.Parser.DateOrder)),
	}

	if cfg.Media.Enabled {
		store, err := media.NewStore(ctx, media.Options{
			Bucket:    cfg.Media.Bucket,
			Region:    cfg.Media.Region,
			Endpoint:  cfg.Media.Endpoint,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("init media store: %w", err)
		}
		runOpts = append(runOpts, pipeline.WithMedia(store))
	}

	run, err := pipeline.NewRun(runOpts...)
	if err != nil {
		return err
	}

	staged, err := run.StageAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("staging complete", slog.Int("batches", len(staged)))
	return nil
}

// Upload pushes staged batches to the CMS. Groups are always synced before
// messages so every message has a group id to reference.
func Upload(ctx context.Context, groups, msgs bool, opts ...Option) error {
	cfg, logger, err := setup(opts...)
	if err != nil {
		return err
	}

	s, err := newSyncer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	switch {
	case groups && !msgs:
		return s.UploadGroups(ctx)
	case msgs && !groups:
		return s.UploadMessages(ctx)
	default:
		return s.UploadAll(ctx)
	}
}

// Delete removes remote data, messages before groups. Each call drains at
// most one listing page per collection; the caller re-runs until the
// reported counts reach zero.
func Delete(ctx context.Context, groups, msgs bool, opts ...Option) error {
	cfg, logger, err := setup(opts...)
	if err != nil {
		return err
	}

	s, err := newSyncer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if !groups && !msgs {
		groups, msgs = true, true
	}

	if msgs {
		n, err := s.DeleteAllMessages(ctx)
		if err != nil {
			return err
		}
		logger.Info("messages deleted", slog.Int("count", n))
	}
	if groups {
		n, err := s.DeleteAllGroups(ctx)
		if err != nil {
			return err
		}
		logger.Info("groups deleted", slog.Int("count", n))
	}
	return nil
}

// Reveal decrypts an anonymized author token back to the original name.
func Reveal(token string, opts ...Option) (string, error) {
	cfg, _, err := setup(opts...)
	if err != nil {
		return "", err
	}
	codec, err := anonymize.New(cfg.Anonymizer.Secret)
	if err != nil {
		return "", err
	}
	return codec.Recover(token)
}

func newSyncer(ctx context.Context, cfg *Config, logger *slog.Logger) (*syncer.Syncer, error) {
	client := strapi.New(cfg.Strapi.URL, logger)
	s := syncer.New(client, cfg.Layout.StagingDir, logger)
	if err := s.Authenticate(ctx, cfg.Strapi.Identifier, cfg.Strapi.Password); err != nil {
		return nil, err
	}
	return s, nil
}

func dateOrder(s string) chatlog.DateOrder {
	if s == DateOrderMonthFirst {
		return chatlog.MonthFirst
	}
	return chatlog.DayFirst
}
