package store

import (
	"context"
	"log"
	"sync"
	"time"
)

// Putter is the write half of the record store.
type Putter interface {
	PutRecord(ctx context.Context, collection, id string, fields map[string]any) error
}

type putRequest struct {
	collection string
	id         string
	fields     map[string]any
}

// AsyncWriter dispatches record writes on a background goroutine so the
// sampling path never waits on network I/O. Delivery is best effort:
// enqueue never blocks, a full queue drops the write, and failures are
// logged rather than retried. One in-flight segment is the accepted loss
// window on abnormal termination.
type AsyncWriter struct {
	store   Putter
	queue   chan putRequest
	done    chan struct{}
	timeout time.Duration

	closeOnce sync.Once
}

func NewAsyncWriter(store Putter, queueSize int) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 32
	}
	w := &AsyncWriter{
		store:   store,
		queue:   make(chan putRequest, queueSize),
		done:    make(chan struct{}),
		timeout: 15 * time.Second,
	}
	go w.drain()
	return w
}

// Enqueue hands a record write to the background writer and returns
// immediately.
func (w *AsyncWriter) Enqueue(collection, id string, fields map[string]any) {
	select {
	case w.queue <- putRequest{collection: collection, id: id, fields: fields}:
	default:
		log.Printf("store: write queue full, dropping %s/%s", collection, id)
	}
}

// Close stops accepting writes and blocks until queued writes have been
// attempted.
func (w *AsyncWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
	})
	<-w.done
}

func (w *AsyncWriter) drain() {
	defer close(w.done)
	for req := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.store.PutRecord(ctx, req.collection, req.id, req.fields); err != nil {
			log.Printf("store: write %s/%s failed: %v", req.collection, req.id, err)
		}
		cancel()
	}
}
