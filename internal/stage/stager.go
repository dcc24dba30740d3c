// Package stage serializes parsed, anonymized message batches to local
// JSON files. Staged files are the durable checkpoint between local
// processing and remote upload: a failed sync never forces a re-parse.
package stage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/strapi"
)

// Mode controls what happens to staged files already present for a
// conversation.
type Mode string

const (
	// Replace removes a conversation's previous staged files before writing.
	Replace Mode = "replace"
	// Append leaves previous staged files alongside the new one.
	Append Mode = "append"
)

// tsFormat is sortable, so repeated stagings of one conversation are
// distinguishable by recency. Nanosecond precision: two append-mode
// stagings inside one second must not share a filename.
const tsFormat = "20060102T150405.000000000Z"

// Stager writes message batches into a staging directory.
type Stager struct {
	dir    string
	mode   Mode
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Stager for dir. The directory is created on first use.
func New(dir string, mode Mode, logger *slog.Logger) *Stager {
	if mode == "" {
		mode = Replace
	}
	return &Stager{dir: dir, mode: mode, logger: logger, now: time.Now}
}

// Stage serializes msgs for one conversation and returns the file path
// written. In replace mode any stale staged files for the same
// conversation are removed first.
func (s *Stager) Stage(conversation string, msgs []models.Message) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("stage: mkdir %s: %w", s.dir, err)
	}

	if s.mode == Replace {
		if err := s.removeStale(conversation); err != nil {
			return "", err
		}
	}

	payloads := make([]strapi.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		payloads = append(payloads, toPayload(m))
	}

	data, err := json.MarshalIndent(payloads, "", "  ")
	if err != nil {
		return "", fmt.Errorf("stage: marshal %s: %w", conversation, err)
	}

	name := fmt.Sprintf("%s-%s.json", conversation, s.now().UTC().Format(tsFormat))
	path := filepath.Join(s.dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}

	s.logger.Info("staged conversation",
		slog.String("conversation", conversation),
		slog.Int("messages", len(msgs)),
		slog.String("path", path))
	return path, nil
}

// List returns all staged batch files, ordered by name (and therefore by
// conversation then recency, given the sortable timestamp suffix).
func (s *Stager) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("stage: list: %w", err)
	}
	return matches, nil
}

// Conversation recovers the conversation name from a staged file path by
// trimming the timestamp suffix. Inverse of the naming in Stage.
func Conversation(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	if i := strings.LastIndex(base, "-"); i > 0 {
		return base[:i]
	}
	return base
}

// Load reads a staged batch back as upload payloads.
func Load(path string) ([]strapi.MessagePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stage: read %s: %w", path, err)
	}
	var payloads []strapi.MessagePayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("stage: parse %s: %w", path, err)
	}
	return payloads, nil
}

// removeStale deletes the previous staged files for exactly this
// conversation. Matching goes through Conversation, the inverse of the
// naming in Stage: a prefix glob would also catch conversations whose
// names extend this one by a hyphen segment ("Team" vs "Team-1").
func (s *Stager) removeStale(conversation string) error {
	files, err := s.List()
	if err != nil {
		return err
	}
	for _, f := range files {
		if Conversation(f) != conversation {
			continue
		}
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("stage: remove stale %s: %w", f, err)
		}
		s.logger.Debug("removed stale staged file", slog.String("path", f))
	}
	return nil
}

// writeAtomic writes content via tmp file -> fsync -> rename, so a crashed
// run never leaves a half-written checkpoint.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ansuz-tmp-*")
	if err != nil {
		return fmt.Errorf("stage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("stage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("stage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("stage: rename: %w", err)
	}
	success = true
	return nil
}

func toPayload(m models.Message) strapi.MessagePayload {
	p := strapi.MessagePayload{
		Content:  m.Body,
		Date:     m.Date,
		Author:   m.Author,
		Tags:     []string{},
		Links:    strapi.Links{Links: []string{}},
		HasLinks: len(m.Links) > 0,
	}
	if len(m.Tags) > 0 {
		p.Tags = append(p.Tags, m.Tags...)
	}
	if len(m.Links) > 0 {
		p.Links.Links = append(p.Links.Links, m.Links...)
	}
	if m.MediaRef != "" {
		ref := m.MediaRef
		p.Media = &ref
	}
	return p
}
