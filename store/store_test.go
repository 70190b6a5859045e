package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &Conversion{
		ID:          "c1",
		SourcePath:  "/lessons/crossy-road.docx",
		SourceName:  "crossy-road",
		ContentHash: "abc123",
		Status:      StatusOK,
		LessonType:  "block-based (scratch) lesson",
		LessonJSON:  `{"topic":"Loops"}`,
		DurationMs:  1200,
		ConvertedAt: time.Now(),
	}
	if err := s.Insert(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := s.LatestByHash(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if got.SourceName != "crossy-road" || got.Status != StatusOK {
		t.Errorf("got = %+v", got)
	}
}

func TestLatestByHashPicksNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, status := range []string{StatusFailed, StatusOK} {
		err := s.Insert(ctx, &Conversion{
			ID:          "c" + string(rune('1'+i)),
			SourcePath:  "/lessons/a.docx",
			SourceName:  "a",
			ContentHash: "samehash",
			Status:      status,
			ConvertedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LatestByHash(ctx, "samehash")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusOK {
		t.Errorf("status = %q, want newest row", got.Status)
	}

	ok, err := s.HasSucceeded(ctx, "samehash")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("HasSucceeded = false")
	}
}

func TestLookupMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LatestByHash(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	ok, err := s.HasSucceeded(context.Background(), "nope")
	if err != nil || ok {
		t.Errorf("HasSucceeded = %v, %v", ok, err)
	}
}

func TestHistoryOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		err := s.Insert(ctx, &Conversion{
			ID:          "h" + string(rune('1'+i)),
			SourcePath:  "/lessons/h.docx",
			SourceName:  "h",
			ContentHash: "hash" + string(rune('1'+i)),
			Status:      StatusOK,
			ConvertedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	hist, err := s.History(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %d rows", len(hist))
	}
	if hist[0].ID != "h3" || hist[1].ID != "h2" {
		t.Errorf("order = %s, %s", hist[0].ID, hist[1].ID)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.bin")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	h1, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Errorf("hashes = %q, %q", h1, h2)
	}
}
