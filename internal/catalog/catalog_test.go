package catalog_test

import (
	"testing"
	"time"

	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/testutil"
)

func TestRecordArchive_Upsert(t *testing.T) {
	db := testutil.TestCatalog(t)

	first := catalog.ArchiveRecord{
		Name:         "WhatsApp Chat with Group A.zip",
		MD5:          "aaa",
		Size:         100,
		DownloadedAt: time.Now(),
	}
	if err := db.RecordArchive(first); err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}

	second := first
	second.MD5 = "bbb"
	second.Size = 200
	if err := db.RecordArchive(second); err != nil {
		t.Fatalf("RecordArchive upsert: %v", err)
	}

	got, err := db.GetArchive(first.Name)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if got == nil {
		t.Fatal("archive not found")
	}
	if got.MD5 != "bbb" || got.Size != 200 {
		t.Errorf("got = %+v, want refreshed checksum and size", got)
	}
}

func TestGetArchive_UnknownReturnsNil(t *testing.T) {
	db := testutil.TestCatalog(t)

	got, err := db.GetArchive("never-seen.zip")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testutil.TestCatalog(t)

	for name, md5 := range map[string]string{"a.zip": "111", "b.zip": "222"} {
		if err := db.RecordArchive(catalog.ArchiveRecord{Name: name, MD5: md5, DownloadedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	sums, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(sums) != 2 || sums["a.zip"] != "111" || sums["b.zip"] != "222" {
		t.Errorf("sums = %v", sums)
	}
}

func TestRecordBatch_AndBatchesFor(t *testing.T) {
	db := testutil.TestCatalog(t)

	base := time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)
	for i, path := range []string{"/tmp/JSON/Group A-1.json", "/tmp/JSON/Group A-2.json"} {
		err := db.RecordBatch(catalog.BatchRecord{
			Path:         path,
			Conversation: "Group A",
			Messages:     10 + i,
			StagedAt:     base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("RecordBatch: %v", err)
		}
	}

	batches, err := db.BatchesFor("Group A")
	if err != nil {
		t.Fatalf("BatchesFor: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}
	// Newest first.
	if !batches[0].StagedAt.After(batches[1].StagedAt) {
		t.Errorf("batches not ordered by recency: %v then %v", batches[0].StagedAt, batches[1].StagedAt)
	}

	other, err := db.BatchesFor("Group B")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("unexpected batches for other conversation: %v", other)
	}
}
