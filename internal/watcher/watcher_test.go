package watcher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/f-sync/followtrack/internal/watcher"
)

func TestNewValidatesConfiguration(t *testing.T) {
	noop := func(context.Context) error { return nil }
	if _, err := watcher.New(watcher.Config{Files: []string{"followers.json"}}); !errors.Is(err, watcher.ErrMissingTrigger) {
		t.Fatalf("expected ErrMissingTrigger, got %v", err)
	}
	if _, err := watcher.New(watcher.Config{Trigger: noop}); !errors.Is(err, watcher.ErrMissingFiles) {
		t.Fatalf("expected ErrMissingFiles, got %v", err)
	}
}

func TestRunTriggersOncePerBurst(t *testing.T) {
	directory := t.TempDir()
	followersPath := filepath.Join(directory, "followers_1.json")
	followingPath := filepath.Join(directory, "following.json")
	unrelatedPath := filepath.Join(directory, "notes.txt")

	var triggerCount atomic.Int32
	triggered := make(chan struct{}, 4)
	fileWatcher, err := watcher.New(watcher.Config{
		Files:    []string{followersPath, followingPath},
		Debounce: 100 * time.Millisecond,
		Trigger: func(context.Context) error {
			triggerCount.Add(1)
			triggered <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runResult := make(chan error, 1)
	go func() { runResult <- fileWatcher.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(unrelatedPath, []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write unrelated: %v", err)
	}
	for _, path := range []string{followersPath, followingPath, followersPath} {
		if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatalf("trigger was not called")
	}
	time.Sleep(300 * time.Millisecond)
	if count := triggerCount.Load(); count != 1 {
		t.Fatalf("expected one trigger for a burst, got %d", count)
	}

	cancel()
	select {
	case err := <-runResult:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
