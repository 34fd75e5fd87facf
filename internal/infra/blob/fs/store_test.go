package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"almazara/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != core.DriverFilesystem || store.Root() != root {
		t.Fatalf("unexpected store identity")
	}
	info, err := store.Put(ctx, "reports/trace_7.csv", strings.NewReader("section,table\n"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"start": "delivery_slip"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 14 || len(info.ETag) != 64 || info.URL != "http://local.blob/reports/trace_7.csv" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "reports", "trace_7.csv.meta")); err != nil {
		t.Fatalf("expected metadata sidecar: %v", err)
	}
	if _, err := store.Put(ctx, "reports/trace_7.csv", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "reports/trace_7.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "section,table\n" || got.Metadata["start"] != "delivery_slip" || got.ContentType != "text/csv" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "backups/snap.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put backup: %v", err)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key != "backups/snap.json" {
		t.Fatalf("unexpected list %+v err %v", all, err)
	}
	reports, err := store.List(ctx, "reports/")
	if err != nil || len(reports) != 1 {
		t.Fatalf("unexpected prefix list %+v err %v", reports, err)
	}

	if ok, err := store.Delete(ctx, "reports/trace_7.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "reports/trace_7.csv"); err != nil || ok {
		t.Fatalf("expected missing delete, got %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "reports/trace_7.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "/abs", "a/../../b", "blob.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("expected invalid key for %q, got %v", key, err)
		}
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{})
	if err != nil || url != "http://local.blob/k" {
		t.Fatalf("unexpected local url %q %v", url, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestStorePutReadErrorLeavesNothing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if list, err := store.List(ctx, ""); err != nil || len(list) != 0 {
		t.Fatalf("expected no blobs after failed put, got %+v %v", list, err)
	}
}
