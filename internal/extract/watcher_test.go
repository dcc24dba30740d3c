package extract

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ExtractsArrivingZip(t *testing.T) {
	tmp := t.TempDir()
	downloadDir := filepath.Join(tmp, "downloaded")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		t.Fatal(err)
	}
	e := New(filepath.Join(tmp, "extracted"), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []string

	go Watch(ctx, e, downloadDir, testLogger(), func(source, dest string) {
		mu.Lock()
		handled = append(handled, dest)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	zipPath := filepath.Join(downloadDir, "WhatsApp Chat with Group A.zip")
	writeZip(t, zipPath, map[string]string{"chat.txt": "body"})

	extractedFile := filepath.Join(tmp, "extracted", "Group A", "chat.txt")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := os.Stat(extractedFile)
		return err == nil
	}, "arriving zip not extracted by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 1
	}, "handled callback not invoked")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	tmp := t.TempDir()
	downloadDir := filepath.Join(tmp, "downloaded")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		t.Fatal(err)
	}
	e := New(filepath.Join(tmp, "extracted"), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, e, downloadDir, testLogger(), nil)

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(downloadDir, "notes.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the settle timer time to have fired if the file were actionable.
	time.Sleep(2 * settleDelay)

	entries, err := os.ReadDir(filepath.Join(tmp, "extracted"))
	if err == nil && len(entries) > 0 {
		t.Errorf("unexpected extraction output: %v", entries)
	}
}
