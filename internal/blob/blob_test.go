package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: filepath.Join(t.TempDir(), "blobs")})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	memStore, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{"fs": fsStore, "memory": memStore}
}

func TestStoreContract(t *testing.T) {
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := store.Put(ctx, "reports/a.txt", strings.NewReader("alpha"), PutOptions{
				ContentType: "text/plain",
				Metadata:    map[string]string{"job": "weekly_report"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != 5 || info.ETag == "" {
				t.Fatalf("unexpected info %+v", info)
			}
			if _, err := store.Put(ctx, "reports/a.txt", strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Put(ctx, "reports/b.txt", strings.NewReader("beta"), PutOptions{}); err != nil {
				t.Fatalf("put b: %v", err)
			}
			if _, err := store.Put(ctx, "other/c.txt", strings.NewReader("gamma"), PutOptions{}); err != nil {
				t.Fatalf("put c: %v", err)
			}

			got, body, err := store.Get(ctx, "reports/a.txt")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			data, _ := io.ReadAll(body)
			_ = body.Close()
			if string(data) != "alpha" || got.ContentType != "text/plain" || got.Metadata["job"] != "weekly_report" {
				t.Fatalf("unexpected blob %q %+v", data, got)
			}

			infos, err := store.List(ctx, "reports/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 || infos[0].Key != "reports/a.txt" || infos[1].Key != "reports/b.txt" {
				t.Fatalf("unexpected listing %+v", infos)
			}

			existed, err := store.Delete(ctx, "reports/a.txt")
			if err != nil || !existed {
				t.Fatalf("delete: %v %v", existed, err)
			}
			if existed, _ := store.Delete(ctx, "reports/a.txt"); existed {
				t.Fatalf("expected second delete to report missing")
			}
			if _, err := store.Head(ctx, "reports/a.txt"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	store, err := Open(context.Background(), Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs default, got %s", store.Driver())
	}
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemPersistsAcrossOpen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	first, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: root})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Put(ctx, "reports/r.txt", strings.NewReader("kept"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "reports", "r.txt.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	second, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: root})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, err := second.Head(ctx, "reports/r.txt")
	if err != nil || info.Size != 4 {
		t.Fatalf("head after reopen: %+v %v", info, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
