package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/pranavjoshi100/safesteps-gps/internal/producer"
	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
	"github.com/pranavjoshi100/safesteps-gps/internal/store"
)

type fakeStream struct {
	mu      sync.Mutex
	current geo.Coordinate
	sub     *producer.Subscriber
	unsubs  int
}

func (f *fakeStream) Subscribe() *producer.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sub = &producer.Subscriber{C: make(chan producer.Sample, 64)}
	return f.sub
}

func (f *fakeStream) Unsubscribe(sub *producer.Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs++
	close(sub.C)
}

func (f *fakeStream) Current() geo.Coordinate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeStream) Snapshot() producer.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return producer.Sample{
		Coordinate: f.current,
		Timestamp:  1700000000.5,
		SourceKind: "gps",
	}
}

type enqueued struct {
	collection string
	id         string
	fields     map[string]any
}

type fakeWriter struct {
	mu   sync.Mutex
	puts []enqueued
}

func (f *fakeWriter) Enqueue(collection, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, enqueued{collection: collection, id: id, fields: fields})
}

func (f *fakeWriter) byCollection(collection string) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, p := range f.puts {
		if p.collection == collection {
			out = append(out, p)
		}
	}
	return out
}

func sampleAt(i int) producer.Sample {
	return producer.Sample{
		Coordinate: geo.Coordinate{Lat: 42.28 + float64(i)*1e-6, Lng: -83.74},
		Timestamp:  1700000000 + float64(i),
		SourceKind: "gps",
	}
}

func TestFlushInvariant(t *testing.T) {
	writer := &fakeWriter{}
	r := NewRecorder(&fakeStream{}, writer, "test", nil)

	for i := 0; i < FlushThreshold+1; i++ {
		r.Append(sampleAt(i))
	}

	segments := writer.byCollection(store.CollectionSegments)
	if len(segments) != 1 {
		t.Fatalf("expected exactly one flush, got %d", len(segments))
	}
	samples := segments[0].fields["samples"].([]producer.Sample)
	if len(samples) != FlushThreshold {
		t.Fatalf("expected %d samples in segment, got %d", FlushThreshold, len(samples))
	}
	if r.BufferLen() != 1 {
		t.Fatalf("expected 1 live sample after flush, got %d", r.BufferLen())
	}
	if ids := r.SegmentIDs(); len(ids) != 1 || ids[0] != segments[0].id {
		t.Fatalf("segment id not tracked: %v", ids)
	}

	// Order preserved across the flush boundary.
	if samples[0].Timestamp != sampleAt(0).Timestamp ||
		samples[FlushThreshold-1].Timestamp != sampleAt(FlushThreshold-1).Timestamp {
		t.Fatalf("segment samples out of order")
	}
}

func TestStartSessionTwice(t *testing.T) {
	stream := &fakeStream{current: geo.Coordinate{Lat: 42.28, Lng: -83.74}}
	r := NewRecorder(stream, &fakeWriter{}, "test", nil)

	clock := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	if !r.StartSession() {
		t.Fatalf("first start should succeed")
	}
	first := r.StartTime()
	if first == 0 {
		t.Fatalf("expected start time recorded")
	}

	clock = clock.Add(time.Minute)
	if r.StartSession() {
		t.Fatalf("second start should be a no-op")
	}
	if r.StartTime() != first {
		t.Fatalf("second start changed start_time: %v -> %v", first, r.StartTime())
	}

	r.StopSession()
}

func TestSamplesFlowFromSubscription(t *testing.T) {
	stream := &fakeStream{}
	r := NewRecorder(stream, &fakeWriter{}, "test", nil)

	r.StartSession()
	stream.sub.C <- sampleAt(0)
	stream.sub.C <- sampleAt(1)

	deadline := time.Now().Add(time.Second)
	for r.BufferLen() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("samples never reached buffer")
		}
		time.Sleep(time.Millisecond)
	}

	r.StopSession()
	// Stop keeps the buffer for later inspection: no flush yet.
	if r.BufferLen() != 2 {
		t.Fatalf("stop must keep the buffer, got %d", r.BufferLen())
	}
	if r.Active() {
		t.Fatalf("expected inactive after stop")
	}
	if stream.unsubs != 1 {
		t.Fatalf("expected unsubscribe on stop")
	}
}

func TestFinalizeAndSubmit(t *testing.T) {
	stream := &fakeStream{current: geo.Coordinate{Lat: 42.2808, Lng: -83.7430}}
	writer := &fakeWriter{}
	r := NewRecorder(stream, writer, "1.4.2", nil)

	r.StartSession()
	start := r.StartTime()
	r.Append(sampleAt(0))
	r.Append(sampleAt(1))
	r.StopSession()

	stream.mu.Lock()
	stream.current = geo.Coordinate{Lat: 42.2901, Lng: -83.7301}
	stream.mu.Unlock()

	id := r.FinalizeAndSubmit(Metadata{
		UserID:     "user-1",
		HazardTags: []string{"uneven-pavement"},
	})
	if id == "" {
		t.Fatalf("expected report id")
	}

	segments := writer.byCollection(store.CollectionSegments)
	if len(segments) != 1 {
		t.Fatalf("expected final flush, got %d segments", len(segments))
	}
	reports := writer.byCollection(store.CollectionReports)
	if len(reports) != 1 {
		t.Fatalf("expected one summary record, got %d", len(reports))
	}

	fields := reports[0].fields
	if fields["user_id"] != "user-1" {
		t.Fatalf("unexpected user: %v", fields["user_id"])
	}
	if fields["start_time"] != start {
		t.Fatalf("unexpected start_time: %v", fields["start_time"])
	}
	if fields["app_version"] != "1.4.2" {
		t.Fatalf("unexpected app_version: %v", fields["app_version"])
	}
	segIDs := fields["segment_ids"].([]string)
	if len(segIDs) != 1 || segIDs[0] != segments[0].id {
		t.Fatalf("summary does not reference flushed segment: %v", segIDs)
	}
	last := fields["last_location"].(geo.Coordinate)
	if last.Lat != 42.2901 {
		t.Fatalf("unexpected last_location: %+v", last)
	}

	// Fully reset afterward.
	if r.Active() || r.StartTime() != 0 || r.BufferLen() != 0 || len(r.SegmentIDs()) != 0 {
		t.Fatalf("recorder not reset after submit")
	}
}

func TestCancelFlushesWithoutSummary(t *testing.T) {
	writer := &fakeWriter{}
	r := NewRecorder(&fakeStream{}, writer, "test", nil)

	r.StartSession()
	r.Append(sampleAt(0))
	r.Cancel()

	if len(writer.byCollection(store.CollectionSegments)) != 1 {
		t.Fatalf("cancel must flush the remaining buffer")
	}
	if len(writer.byCollection(store.CollectionReports)) != 0 {
		t.Fatalf("cancel must not write a summary record")
	}
	if r.Active() || r.BufferLen() != 0 {
		t.Fatalf("recorder not reset after cancel")
	}
}

func TestAdHocReport(t *testing.T) {
	stream := &fakeStream{current: geo.Coordinate{Lat: 42.28, Lng: -83.74}}
	writer := &fakeWriter{}
	r := NewRecorder(stream, writer, "test", nil)

	id := r.ReportPoint(Metadata{UserID: "user-2", HazardTags: []string{"ice"}})
	if id == "" {
		t.Fatalf("expected report id")
	}

	segments := writer.byCollection(store.CollectionSegments)
	if len(segments) != 1 {
		t.Fatalf("expected one segment record, got %d", len(segments))
	}
	samples := segments[0].fields["samples"].([]producer.Sample)
	if len(samples) != 1 {
		t.Fatalf("expected a single sample, got %d", len(samples))
	}

	reports := writer.byCollection(store.CollectionReports)
	if len(reports) != 1 {
		t.Fatalf("expected one summary record, got %d", len(reports))
	}
	fields := reports[0].fields
	if fields["start_location"] != fields["last_location"] {
		t.Fatalf("ad hoc report start and end must match")
	}
	if fields["start_time"] != 1700000000.5 {
		t.Fatalf("summary start_time should be the sample timestamp: %v", fields["start_time"])
	}

	// Shared session state untouched.
	if r.Active() || r.BufferLen() != 0 {
		t.Fatalf("ad hoc report touched session state")
	}
}

func TestBoundaryHook(t *testing.T) {
	boundaries := 0
	r := NewRecorder(&fakeStream{}, &fakeWriter{}, "test", func() { boundaries++ })

	r.StartSession()
	r.StopSession()
	r.FinalizeAndSubmit(Metadata{})
	if boundaries != 3 {
		t.Fatalf("expected boundary hook on start/stop/submit, got %d", boundaries)
	}
}
