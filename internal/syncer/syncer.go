// Package syncer reconciles staged conversations against the CMS: groups
// are created once per conversation name, messages upload strictly in
// parse order, and bulk deletion drains one page per invocation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/stage"
	"github.com/starford/ansuz/internal/strapi"
)

// Syncer pushes staged batches to the CMS and tears remote state down.
type Syncer struct {
	client     *strapi.Client
	stagingDir string
	logger     *slog.Logger
}

// New creates a Syncer reading staged batches from stagingDir.
func New(client *strapi.Client, stagingDir string, logger *slog.Logger) *Syncer {
	return &Syncer{client: client, stagingDir: stagingDir, logger: logger}
}

// Authenticate logs in against the CMS. Failure is terminal for the run.
func (s *Syncer) Authenticate(ctx context.Context, identifier, password string) error {
	return s.client.Authenticate(ctx, identifier, password)
}

// UploadGroups ensures a remote group exists for every staged
// conversation. The remote listing is fetched exactly once; existence is
// an exact-name linear scan against it. Two concurrent runs can race and
// create duplicate groups - the CMS has no unique constraint, and this is
// a known, unmitigated limitation.
func (s *Syncer) UploadGroups(ctx context.Context) error {
	groups, err := s.client.Groups(ctx)
	if err != nil {
		return fmt.Errorf("syncer: fetch groups: %w", err)
	}
	return s.uploadGroups(ctx, &groups)
}

func (s *Syncer) uploadGroups(ctx context.Context, groups *[]strapi.Group) error {
	files, err := s.stagedFiles()
	if err != nil {
		return err
	}

	for _, name := range conversations(files) {
		g, created, err := s.ensureGroup(ctx, name, groups)
		if err != nil {
			s.logger.Warn("ensure group failed",
				slog.String("conversation", name),
				slog.String("error", err.Error()))
			continue
		}
		if created {
			s.logger.Info("created group", slog.String("name", name), slog.Int("id", g.ID))
		} else {
			s.logger.Info("group already exists", slog.String("name", name), slog.Int("id", g.ID))
		}
	}
	return nil
}

// UploadMessages uploads every staged batch. Per conversation, messages go
// up one at a time in original sequence order: at most one network call is
// in flight (deliberate backpressure on the CMS), and relative order of
// successfully uploaded messages always matches parse order. A failed
// individual upload is logged and skipped, never aborting the batch, so
// partial success is possible and tolerated downstream.
//
// Re-running on a partially synced conversation can duplicate messages:
// the remote API carries no dedup key. Documented limitation.
func (s *Syncer) UploadMessages(ctx context.Context) error {
	groups, err := s.client.Groups(ctx)
	if err != nil {
		return fmt.Errorf("syncer: fetch groups: %w", err)
	}
	return s.uploadMessages(ctx, &groups)
}

func (s *Syncer) uploadMessages(ctx context.Context, groups *[]strapi.Group) error {
	files, err := s.stagedFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := stage.Conversation(file)

		payloads, err := stage.Load(file)
		if err != nil {
			s.logger.Warn("skipping unreadable staged file",
				slog.String("path", file),
				slog.String("error", err.Error()))
			continue
		}

		group, _, err := s.ensureGroup(ctx, name, groups)
		if err != nil {
			s.logger.Warn("ensure group failed, skipping conversation",
				slog.String("conversation", name),
				slog.String("error", err.Error()))
			continue
		}

		uploaded := 0
		for i, payload := range payloads {
			if err := ctx.Err(); err != nil {
				return err
			}
			payload.WhatsappGroup = group.ID
			if _, err := s.client.CreateMessage(ctx, payload); err != nil {
				s.logUploadError(name, i, err)
				continue
			}
			uploaded++
		}
		s.logger.Info("uploaded conversation",
			slog.String("conversation", name),
			slog.Int("uploaded", uploaded),
			slog.Int("total", len(payloads)))
	}
	return nil
}

// UploadAll ensures groups first, then uploads messages. The remote group
// listing is fetched once and shared by both phases.
func (s *Syncer) UploadAll(ctx context.Context) error {
	groups, err := s.client.Groups(ctx)
	if err != nil {
		return fmt.Errorf("syncer: fetch groups: %w", err)
	}
	if err := s.uploadGroups(ctx, &groups); err != nil {
		return err
	}
	return s.uploadMessages(ctx, &groups)
}

// DeleteAllMessages deletes one page of remote messages, sequentially.
// The fetch is page-capped, so a single invocation removes at most
// strapi.PageSize messages; re-run until the count comes back zero.
func (s *Syncer) DeleteAllMessages(ctx context.Context) (int, error) {
	msgs, err := s.client.Messages(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncer: fetch messages: %w", err)
	}

	deleted := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.client.DeleteMessage(ctx, m.ID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			s.logger.Warn("delete message failed",
				slog.Int("id", m.ID),
				slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	s.logger.Info("deleted messages", slog.Int("count", deleted), slog.Int("page", len(msgs)))
	if len(msgs) == strapi.PageSize {
		s.logger.Info("page was full; re-run delete until nothing remains")
	}
	return deleted, nil
}

// DeleteAllGroups deletes one page of remote groups, sequentially.
func (s *Syncer) DeleteAllGroups(ctx context.Context) (int, error) {
	groups, err := s.client.Groups(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncer: fetch groups: %w", err)
	}

	deleted := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.client.DeleteGroup(ctx, g.ID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			s.logger.Warn("delete group failed",
				slog.Int("id", g.ID),
				slog.String("name", g.Name),
				slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	s.logger.Info("deleted groups", slog.Int("count", deleted), slog.Int("page", len(groups)))
	return deleted, nil
}

// ensureGroup returns the group with the given name, creating it when the
// fetched listing has no exact match. Created groups are appended to the
// listing so later conversations in the same run see them.
func (s *Syncer) ensureGroup(ctx context.Context, name string, groups *[]strapi.Group) (*strapi.Group, bool, error) {
	for i := range *groups {
		if (*groups)[i].Name == name {
			return &(*groups)[i], false, nil
		}
	}
	g, err := s.client.CreateGroup(ctx, name)
	if err != nil {
		return nil, false, err
	}
	*groups = append(*groups, *g)
	return &(*groups)[len(*groups)-1], true, nil
}

// stagedFiles returns the staged batch files sorted by name. A missing
// staging directory is a run-level error: there is nothing to upload and
// the operator likely forgot to run the scraper.
func (s *Syncer) stagedFiles() ([]string, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return nil, fmt.Errorf("syncer: staging dir %s: %w (run the scraper first)", s.stagingDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(s.stagingDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (s *Syncer) logUploadError(conversation string, index int, err error) {
	var reqErr *apperr.RequestError
	kind := "error"
	switch {
	case errors.As(err, &reqErr) && reqErr.IsValidation():
		kind = "validation"
	case errors.As(err, &reqErr) && reqErr.IsNetwork():
		kind = "network"
	}
	s.logger.Warn("message upload failed, continuing",
		slog.String("conversation", conversation),
		slog.Int("index", index),
		slog.String("kind", kind),
		slog.String("error", err.Error()))
}

// conversations derives the deduplicated, ordered conversation names from
// staged file paths.
func conversations(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	var out []string
	for _, f := range files {
		name := stage.Conversation(f)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
