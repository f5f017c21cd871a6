package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"equiploan/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := s.Put(ctx, "reports/overdue/job-1.csv", strings.NewReader("a,b\n"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"kind": "overdue"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ETag == "" || info.Metadata["kind"] != "overdue" {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "reports/overdue/job-1.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "a,b\n" || got.ContentType != "text/csv" || got.ETag != info.ETag {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	if _, err := s.Put(ctx, "reports/overdue/job-1.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStoreListSkipsSidecars(t *testing.T) {
	ctx := context.Background()
	s, _ := New(t.TempDir())
	for _, key := range []string{"reports/b.json", "reports/a.csv", "other/c.csv"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := s.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "reports/a.csv" || list[1].Key != "reports/b.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(all))
	}
}

func TestStoreDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := New(dir)
	if _, err := s.Put(ctx, "x.csv", strings.NewReader("1"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := s.Delete(ctx, "x.csv")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x.csv"+metaSuffix)); !os.IsNotExist(err) {
		t.Fatalf("sidecar left behind: %v", err)
	}
	ok, err = s.Delete(ctx, "x.csv")
	if err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "x.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "x.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, key := range []string{"", "  ", "/etc/passwd", "../escape", "a/../../b", "x" + metaSuffix} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStoreURL(t *testing.T) {
	s, _ := New(t.TempDir())
	u, err := s.URL(context.Background(), "reports/a.csv", 0)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/reports/a.csv") {
		t.Fatalf("unexpected url %s", u)
	}
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}
