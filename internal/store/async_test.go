package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePutter struct {
	mu    sync.Mutex
	puts  []putRequest
	fail  bool
	slow  time.Duration
	calls int
}

func (f *fakePutter) PutRecord(_ context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.slow > 0 {
		time.Sleep(f.slow)
	}
	if f.fail {
		return errors.New("write refused")
	}
	f.puts = append(f.puts, putRequest{collection: collection, id: id, fields: fields})
	return nil
}

func (f *fakePutter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAsyncWriterDelivers(t *testing.T) {
	putter := &fakePutter{}
	w := NewAsyncWriter(putter, 8)

	w.Enqueue(CollectionSegments, "seg-1", map[string]any{"app_version": "dev"})
	w.Enqueue(CollectionReports, "rep-1", map[string]any{"user_id": "u1"})
	w.Close()

	if len(putter.puts) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(putter.puts))
	}
	if putter.puts[0].id != "seg-1" || putter.puts[1].id != "rep-1" {
		t.Fatalf("writes out of order: %+v", putter.puts)
	}
}

func TestAsyncWriterLogsFailures(t *testing.T) {
	putter := &fakePutter{fail: true}
	w := NewAsyncWriter(putter, 8)

	w.Enqueue(CollectionSegments, "seg-1", nil)
	w.Close()

	// The failed write was attempted once and not retried.
	if putter.count() != 1 {
		t.Fatalf("expected single attempt, got %d", putter.count())
	}
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	putter := &fakePutter{slow: 50 * time.Millisecond}
	w := NewAsyncWriter(putter, 1)

	// Far more writes than the queue holds while the drain is slow; the
	// excess must drop without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			w.Enqueue(CollectionSegments, "seg", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("enqueue blocked")
	}
	w.Close()
}

func TestAsyncWriterCloseTwice(t *testing.T) {
	w := NewAsyncWriter(&fakePutter{}, 4)
	w.Close()
	w.Close()
}
