package metadata

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReportsCurrentFileChanges(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan string, 16)
	done := make(chan struct{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		defer close(done)
		_ = Watch(ctx, root, logger, func(name string) {
			events <- name
		})
	}()

	// Give the watcher a moment to install its watches.
	time.Sleep(100 * time.Millisecond)

	dir := filepath.Join(root, "42")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// The new directory needs to be picked up before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "current.xml"), []byte("<EntityDescriptor/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-events:
		if name != "42" {
			t.Errorf("event name = %q, want 42", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watcher event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "7")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan string, 16)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		_ = Watch(ctx, root, logger, func(name string) {
			events <- name
		})
	}()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "commits.yaml"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-events:
		t.Errorf("unexpected event for %q", name)
	case <-time.After(500 * time.Millisecond):
	}
}
