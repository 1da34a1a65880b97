package direct

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPublisher_NilStorage(t *testing.T) {
	_, err := NewPublisher(nil, nil)
	if err == nil {
		t.Fatal("Expected error for nil storage")
	}
	if err.Error() != "result store required" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDeliver_Stores(t *testing.T) {
	store, err := sqlite.NewProvider(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	publisher, _ := NewPublisher(store, quietLogger())
	ctx := context.Background()

	publisher.Deliver(ctx, &domain.Result{ID: "r1", Response: &domain.Response{Status: 200}})

	body, err := store.GetResult(ctx, "r1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil || decoded["id"] != "r1" {
		t.Errorf("decoded = %v, err = %v", decoded, err)
	}
}

func TestAwait_AlreadyDelivered(t *testing.T) {
	publisher, _ := NewPublisher(memory.New(), quietLogger())
	ctx := context.Background()
	publisher.Deliver(ctx, &domain.Result{ID: "r1"})

	body, err := publisher.Await(ctx, "r1")
	if err != nil || len(body) == 0 {
		t.Fatalf("Await() = %s, %v", body, err)
	}
	if len(publisher.waiters) != 0 {
		t.Error("waiter should be released")
	}
}

func TestAwait_WakesOnDeliver(t *testing.T) {
	publisher, _ := NewPublisher(memory.New(), quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type awaited struct {
		body []byte
		err  error
	}
	done := make(chan awaited, 2)
	for i := 0; i < 2; i++ {
		go func() {
			body, err := publisher.Await(ctx, "r1")
			done <- awaited{body, err}
		}()
	}

	// Give both waiters a chance to register before delivering.
	time.Sleep(20 * time.Millisecond)
	publisher.Deliver(ctx, &domain.Result{ID: "r1", IsError: true, Err: errors.New("boom")})

	for i := 0; i < 2; i++ {
		got := <-done
		if got.err != nil {
			t.Fatalf("Await() error = %v", got.err)
		}
		var decoded map[string]any
		_ = json.Unmarshal(got.body, &decoded)
		if decoded["error"] != "boom" {
			t.Errorf("decoded = %v", decoded)
		}
	}
}

func TestAwait_ContextDone(t *testing.T) {
	publisher, _ := NewPublisher(memory.New(), quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := publisher.Await(ctx, "missing"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v", err)
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.waiters) != 0 {
		t.Error("waiter should be released on timeout")
	}
}

type failingStore struct{}

func (failingStore) SaveResult(context.Context, *domain.Result) error { return errors.New("disk full") }
func (failingStore) GetResult(context.Context, string) ([]byte, error) {
	return nil, ports.ErrNotFound
}

func TestDeliver_StoreErrorStillWakes(t *testing.T) {
	publisher, _ := NewPublisher(failingStore{}, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := publisher.Await(ctx, "r1")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	publisher.Deliver(ctx, &domain.Result{ID: "r1"})

	if err := <-done; !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Await() error = %v, want not found", err)
	}
}
