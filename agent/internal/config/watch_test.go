package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchYAML = `
agent:
  server_endpoint: "localhost:50051"
  buffer_size: %s
`

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, "250")

	select {
	case cfg := <-got:
		if cfg.Agent.BufferSize != 250 {
			t.Errorf("buffer_size after reload: got %d, want 250", cfg.Agent.BufferSize)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onChange was not called after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_InvalidReloadSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, "-1")

	select {
	case cfg := <-got:
		t.Fatalf("onChange called with invalid config: %+v", cfg.Agent)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "config.yaml")
	if err := Watch(context.Background(), path, func(*Config) {}); err == nil {
		t.Fatal("expected error watching a missing directory, got nil")
	}
}

func writeConfig(t *testing.T, path, bufferSize string) {
	t.Helper()
	content := []byte(fmt.Sprintf(watchYAML, bufferSize))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
