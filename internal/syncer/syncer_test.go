package syncer_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/stage"
	"github.com/starford/ansuz/internal/strapi"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stageConversation writes a staged batch of n messages for name.
func stageConversation(t *testing.T, dir, name string, n int) {
	t.Helper()
	s := stage.New(dir, stage.Replace, testLogger())
	var msgs []models.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, models.Message{
			Date:   time.Date(2020, 2, 1, 10, 0, i, 0, time.UTC),
			Author: "tok-author",
			Body:   fmt.Sprintf("message %03d", i),
		})
	}
	if _, err := s.Stage(name, msgs); err != nil {
		t.Fatal(err)
	}
}

func newSyncer(t *testing.T, stagingDir string) (*testutil.FakeCMS, *syncer.Syncer) {
	t.Helper()
	cms, url := testutil.StartCMS(t)
	s := syncer.New(strapi.New(url, testLogger()), stagingDir, testLogger())
	if err := s.Authenticate(context.Background(), testutil.CMSIdentifier, testutil.CMSPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return cms, s
}

func TestUploadGroups_CreatesMissingOnly(t *testing.T) {
	dir := t.TempDir()
	stageConversation(t, dir, "Group A", 1)
	stageConversation(t, dir, "Group B", 1)

	cms, s := newSyncer(t, dir)
	cms.Groups = append(cms.Groups, strapi.Group{ID: 77, Name: "Group A"})

	if err := s.UploadGroups(context.Background()); err != nil {
		t.Fatalf("UploadGroups: %v", err)
	}

	if len(cms.Groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2: %+v", len(cms.Groups), cms.Groups)
	}
	if cms.Groups[0].ID != 77 {
		t.Error("existing group should be left alone")
	}
	if cms.Groups[1].Name != "Group B" {
		t.Errorf("created group = %+v", cms.Groups[1])
	}
}

func TestUploadMessages_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	stageConversation(t, dir, "Group A", 10)

	cms, s := newSyncer(t, dir)
	if err := s.UploadMessages(context.Background()); err != nil {
		t.Fatalf("UploadMessages: %v", err)
	}

	groups := cms.Groups
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	msgs := cms.MessagesFor(groups[0].ID)
	if len(msgs) != 10 {
		t.Fatalf("len(msgs) = %d, want 10", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("message %03d", i)
		if m.Content != want {
			t.Fatalf("msgs[%d].Content = %q, want %q", i, m.Content, want)
		}
	}
}

func TestUploadMessages_SkipsFailedAndKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	stageConversation(t, dir, "Group A", 5)

	cms, s := newSyncer(t, dir)
	if err := s.UploadGroups(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Fail exactly one mid-batch message create.
	cms.FailCreates = 1

	if err := s.UploadMessages(context.Background()); err != nil {
		t.Fatalf("UploadMessages: %v", err)
	}

	msgs := cms.MessagesFor(cms.Groups[0].ID)
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4 after one failure", len(msgs))
	}
	// The survivors keep their relative order.
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Content >= msgs[i].Content {
			t.Fatalf("order broken: %q then %q", msgs[i-1].Content, msgs[i].Content)
		}
	}
}

func TestUploadMessages_MissingStagingDir(t *testing.T) {
	_, s := newSyncer(t, "/nonexistent/staging/dir")

	if err := s.UploadMessages(context.Background()); err == nil {
		t.Fatal("expected run-level error for missing staging dir")
	}
}

func TestDeleteAllMessages_DrainsPage(t *testing.T) {
	dir := t.TempDir()
	cms, s := newSyncer(t, dir)

	var seed []strapi.RemoteMessage
	for i := 0; i < 25; i++ {
		seed = append(seed, strapi.RemoteMessage{Content: fmt.Sprintf("m%d", i)})
	}
	cms.SeedMessages(1, seed...)

	n, err := s.DeleteAllMessages(context.Background())
	if err != nil {
		t.Fatalf("DeleteAllMessages: %v", err)
	}
	if n != 25 {
		t.Errorf("deleted = %d, want 25", n)
	}
	if got := cms.MessageCount(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestDeleteAllGroups(t *testing.T) {
	dir := t.TempDir()
	cms, s := newSyncer(t, dir)
	cms.Groups = []strapi.Group{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}

	n, err := s.DeleteAllGroups(context.Background())
	if err != nil {
		t.Fatalf("DeleteAllGroups: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if len(cms.Groups) != 0 {
		t.Errorf("remaining = %+v", cms.Groups)
	}
}

func TestUploadAll_GroupsThenMessages(t *testing.T) {
	dir := t.TempDir()
	stageConversation(t, dir, "Group A", 3)

	cms, s := newSyncer(t, dir)
	if err := s.UploadAll(context.Background()); err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if len(cms.Groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(cms.Groups))
	}
	if got := len(cms.MessagesFor(cms.Groups[0].ID)); got != 3 {
		t.Errorf("messages = %d, want 3", got)
	}
	if cms.GroupListings != 1 {
		t.Errorf("group listings = %d, want one shared fetch", cms.GroupListings)
	}
}

func TestDeleteAllMessages_RerunDrainsBeyondPageCap(t *testing.T) {
	dir := t.TempDir()
	cms, s := newSyncer(t, dir)

	var seed []strapi.RemoteMessage
	for i := 0; i < strapi.PageSize+100; i++ {
		seed = append(seed, strapi.RemoteMessage{Content: fmt.Sprintf("m%d", i)})
	}
	cms.SeedMessages(1, seed...)

	// One invocation drains at most one page.
	n, err := s.DeleteAllMessages(context.Background())
	if err != nil {
		t.Fatalf("first DeleteAllMessages: %v", err)
	}
	if n != strapi.PageSize {
		t.Errorf("first pass deleted = %d, want %d", n, strapi.PageSize)
	}
	if got := cms.MessageCount(); got != 100 {
		t.Errorf("remaining after first pass = %d, want 100", got)
	}

	// Re-run picks up the remainder.
	n, err = s.DeleteAllMessages(context.Background())
	if err != nil {
		t.Fatalf("second DeleteAllMessages: %v", err)
	}
	if n != 100 {
		t.Errorf("second pass deleted = %d, want 100", n)
	}
	if got := cms.MessageCount(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}
