// Package producer turns a platform location source into a continuous,
// fan-out stream of timestamped samples. Subscribers get every underlying
// fix, plus a re-emit of the last known position on a fixed cadence so the
// stream never goes quiet while the walker stands still.
package producer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
)

const subscriberBuffer = 64

// Sample is one timestamped position reading. Timestamps are float
// seconds since the epoch, matching the stored record shape.
type Sample struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Timestamp  float64        `json:"timestamp"`
	SourceKind string         `json:"source_kind"`
	SensorID   int            `json:"sensor_id"`
}

// Subscriber receives samples on C. Sends are non-blocking: a subscriber
// that falls behind loses samples rather than stalling the producer.
type Subscriber struct {
	C chan Sample
}

type Producer struct {
	source         Source
	sampleInterval time.Duration
	now            func() time.Time

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	current     geo.Coordinate
	sensorID    int
	subscribers map[*Subscriber]struct{}
}

func NewProducer(source Source, sampleInterval time.Duration) *Producer {
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	return &Producer{
		source:         source,
		sampleInterval: sampleInterval,
		now:            time.Now,
		subscribers:    map[*Subscriber]struct{}{},
	}
}

// Start acquires the location capability and begins emitting. Repeated
// calls while running are no-ops. A denied permission is not fatal: the
// producer keeps ticking and emits the zero-coordinate sentinel, which
// callers must treat as "position unknown".
func (p *Producer) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	authorized := true
	if err := p.source.Authorize(ctx); err != nil {
		authorized = false
		log.Printf("producer: location unavailable, emitting sentinel only: %v", err)
	}

	if authorized {
		go p.forward(runCtx)
	}
	go p.tick(runCtx)
}

// Stop cancels both emission paths and drops every subscriber.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	for sub := range p.subscribers {
		close(sub.C)
		delete(p.subscribers, sub)
	}
}

// Current returns the last known coordinate, or the zero sentinel when no
// fix has arrived yet. Never fails; readers accept up to ~1 s staleness.
func (p *Producer) Current() geo.Coordinate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// HasFix reports whether any real fix has been seen since start. False
// means Current is the unknown-position sentinel.
func (p *Producer) HasFix() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.current.IsZero()
}

func (p *Producer) Subscribe() *Subscriber {
	sub := &Subscriber{C: make(chan Sample, subscriberBuffer)}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[sub] = struct{}{}
	return sub
}

func (p *Producer) Unsubscribe(sub *Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribers[sub]; !ok {
		return
	}
	delete(p.subscribers, sub)
	close(sub.C)
}

// Snapshot builds a sample from the last known position, for ad-hoc
// reports outside the subscription stream.
func (p *Producer) Snapshot() Sample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Sample{
		Coordinate: p.current,
		Timestamp:  epochSeconds(p.now()),
		SourceKind: "gps",
		SensorID:   p.sensorID,
	}
}

func (p *Producer) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fix := <-p.source.Updates():
			p.mu.Lock()
			p.current = fix.Coordinate
			p.sensorID = fix.SensorID
			p.mu.Unlock()
			p.broadcast()
		}
	}
}

func (p *Producer) tick(ctx context.Context) {
	ticker := time.NewTicker(p.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.broadcast()
		}
	}
}

func (p *Producer) broadcast() {
	p.mu.RLock()
	sample := Sample{
		Coordinate: p.current,
		Timestamp:  epochSeconds(p.now()),
		SourceKind: "gps",
		SensorID:   p.sensorID,
	}
	// Sends stay under the read lock so a concurrent Unsubscribe (which
	// closes the channel under the write lock) cannot race a send. They
	// are non-blocking, so the lock is held only briefly.
	for sub := range p.subscribers {
		select {
		case sub.C <- sample:
		default:
		}
	}
	p.mu.RUnlock()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
