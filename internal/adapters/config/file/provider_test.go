package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider("", nil); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestProvider_LoadAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logic:\n  handlers_timeout_ms: 100\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewProvider(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logic.HandlersTimeoutMS != 100 {
		t.Errorf("handlers timeout = %d", cfg.Logic.HandlersTimeoutMS)
	}
	if p.Current() != cfg {
		t.Error("Current() should return the loaded config")
	}

	changes := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(c *config.Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("logic:\n  handlers_timeout_ms: 250\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Logic.HandlersTimeoutMS == 250 {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
