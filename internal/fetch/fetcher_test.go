package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource serves file bodies from a map; ids listed in fail error out.
type fakeSource struct {
	files  []models.RemoteFile
	bodies map[string]string
	fail   map[string]bool
}

func (s *fakeSource) ListFiles(ctx context.Context) ([]models.RemoteFile, error) {
	return s.files, nil
}

func (s *fakeSource) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if s.fail[fileID] {
		return nil, errors.New("stream reset")
	}
	body, ok := s.bodies[fileID]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestListArchives_Filters(t *testing.T) {
	src := &fakeSource{files: []models.RemoteFile{
		{ID: "1", Name: "WhatsApp Chat with Group A.zip"},
		{ID: "2", Name: "WhatsApp Chat with Group B.txt"},
		{ID: "3", Name: "WhatsApp Chat with Old.zip", Trashed: true},
		{ID: "4", Name: "holiday-photos.zip"},
		{ID: "5", Name: "WhatsApp Chat with Notes.pdf"},
	}}
	f := New(src, t.TempDir(), "WhatsApp Chat", testLogger())

	got, err := f.ListArchives(context.Background())
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2: %+v", len(got), got)
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("got = %+v", got)
	}
}

func TestListArchives_EmptyKeywordMatchesAll(t *testing.T) {
	src := &fakeSource{files: []models.RemoteFile{
		{ID: "1", Name: "anything.zip"},
	}}
	f := New(src, t.TempDir(), "", testLogger())

	got, err := f.ListArchives(context.Background())
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(got) = %d, want 1", len(got))
	}
}

func TestDownload_WritesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		bodies: map[string]string{"1": "first"},
	}
	f := New(src, dir, "", testLogger())
	file := models.RemoteFile{ID: "1", Name: "WhatsApp Chat with Group A.zip"}

	path, err := f.Download(context.Background(), file)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q", path)
	}

	src.bodies["1"] = "second"
	if _, err := f.Download(context.Background(), file); err != nil {
		t.Fatalf("re-download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want overwrite", data)
	}
}

func TestDownloadAll_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		bodies: map[string]string{"1": "a", "3": "c"},
		fail:   map[string]bool{"2": true},
	}
	f := New(src, dir, "", testLogger())

	paths := f.DownloadAll(context.Background(), []models.RemoteFile{
		{ID: "1", Name: "a.zip"},
		{ID: "2", Name: "b.zip"},
		{ID: "3", Name: "c.zip"},
	})
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2: %v", len(paths), paths)
	}
	if filepath.Base(paths[0]) != "a.zip" || filepath.Base(paths[1]) != "c.zip" {
		t.Errorf("paths = %v", paths)
	}
}

func TestDownloadAll_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{bodies: map[string]string{"1": "a"}}
	f := New(src, t.TempDir(), "", testLogger())

	paths := f.DownloadAll(ctx, []models.RemoteFile{{ID: "1", Name: "a.zip"}})
	if len(paths) != 0 {
		t.Errorf("paths = %v, want none after cancel", paths)
	}
}
