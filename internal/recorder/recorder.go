// Package recorder owns the one active walking session: its metadata, the
// in-memory sample buffer, and the chunked handoff of samples to the
// record store.
package recorder

import (
	"log"
	"sync"
	"time"

	"github.com/pranavjoshi100/safesteps-gps/internal/producer"
	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
	"github.com/pranavjoshi100/safesteps-gps/internal/store"

	"github.com/google/uuid"
)

// FlushThreshold bounds the in-memory buffer: once an append would push it
// past this many samples, the full chunk is flushed as a segment. At most
// one threshold's worth of samples is lost on abnormal termination.
const FlushThreshold = 3000

// PositionStream is the producer-side surface the recorder uses.
type PositionStream interface {
	Subscribe() *producer.Subscriber
	Unsubscribe(*producer.Subscriber)
	Current() geo.Coordinate
	Snapshot() producer.Sample
}

// SegmentWriter dispatches record writes without blocking; the async
// store writer satisfies it.
type SegmentWriter interface {
	Enqueue(collection, id string, fields map[string]any)
}

// Metadata is the caller-supplied payload attached to a submitted trip.
type Metadata struct {
	UserID               string             `json:"user_id"`
	HazardTags           []string           `json:"hazard_tags"`
	IntensityValues      map[string]float64 `json:"intensity_values"`
	ImageID              string             `json:"image_id"`
	BuildingInfo         string             `json:"building_info"`
	DetectionSensitivity float64            `json:"detection_sensitivity"`
}

type Recorder struct {
	stream     PositionStream
	writer     SegmentWriter
	appVersion string
	now        func() time.Time

	// onBoundary runs after every session boundary (start, stop, cancel,
	// submit) so the activity detector can re-sync its dwell timers.
	onBoundary func()

	mu         sync.Mutex
	active     bool
	startTime  float64
	startLoc   geo.Coordinate
	buffer     []producer.Sample
	segmentIDs []string
	sub        *producer.Subscriber
}

func NewRecorder(stream PositionStream, writer SegmentWriter, appVersion string, onBoundary func()) *Recorder {
	return &Recorder{
		stream:     stream,
		writer:     writer,
		appVersion: appVersion,
		now:        time.Now,
		onBoundary: onBoundary,
	}
}

// Active reports whether a session is recording. The activity detector
// mirrors this as its Recording state.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// StartTime returns the active session's start in epoch seconds, 0 when
// idle.
func (r *Recorder) StartTime() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startTime
}

// StartSession begins recording. Only one session may be active at a
// time; starting while active is a logged no-op, not an error.
func (r *Recorder) StartSession() bool {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		log.Printf("recorder: session already active, ignoring start")
		return false
	}
	r.buffer = nil
	r.segmentIDs = nil
	r.startTime = epochSeconds(r.now())
	r.startLoc = r.stream.Current()
	r.sub = r.stream.Subscribe()
	r.active = true
	sub := r.sub
	r.mu.Unlock()

	go r.consume(sub)
	r.boundary()
	return true
}

// StopSession ends the position feed and marks the session inactive. The
// buffer is kept: flushing is a separate explicit step so callers can
// attach hazard metadata before committing.
func (r *Recorder) StopSession() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	sub := r.sub
	r.sub = nil
	r.active = false
	r.mu.Unlock()

	r.stream.Unsubscribe(sub)
	r.boundary()
}

// FinalizeAndSubmit flushes whatever is still buffered as a final segment,
// writes the session-summary record, and resets to a fresh state. Returns
// the summary record id.
func (r *Recorder) FinalizeAndSubmit(meta Metadata) string {
	r.mu.Lock()
	if r.active {
		sub := r.sub
		r.sub = nil
		r.active = false
		r.mu.Unlock()
		r.stream.Unsubscribe(sub)
		r.mu.Lock()
	}

	if len(r.buffer) > 0 {
		r.flushLocked(r.buffer)
		r.buffer = nil
	}

	reportID := uuid.NewString()
	fields := summaryFields(meta, r.startLoc, r.stream.Current(), r.startTime,
		append([]string(nil), r.segmentIDs...), epochSeconds(r.now()), r.appVersion)
	r.writer.Enqueue(store.CollectionReports, reportID, fields)

	r.resetLocked()
	r.mu.Unlock()

	r.boundary()
	return reportID
}

// Cancel flushes the remaining buffer so partial data is not silently
// lost, but writes no summary record.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.active {
		sub := r.sub
		r.sub = nil
		r.active = false
		r.mu.Unlock()
		r.stream.Unsubscribe(sub)
		r.mu.Lock()
	}

	if len(r.buffer) > 0 {
		r.flushLocked(r.buffer)
		r.buffer = nil
	}
	r.resetLocked()
	r.mu.Unlock()

	r.boundary()
}

// ReportPoint files an ad-hoc single-point report: one sample captured
// now, flushed as a one-sample segment plus a summary whose start and end
// locations are identical. Shared session state is untouched.
func (r *Recorder) ReportPoint(meta Metadata) string {
	sample := r.stream.Snapshot()

	segID := uuid.NewString()
	r.writer.Enqueue(store.CollectionSegments, segID, map[string]any{
		"samples":     []producer.Sample{sample},
		"app_version": r.appVersion,
	})

	reportID := uuid.NewString()
	fields := summaryFields(meta, sample.Coordinate, sample.Coordinate,
		sample.Timestamp, []string{segID}, epochSeconds(r.now()), r.appVersion)
	r.writer.Enqueue(store.CollectionReports, reportID, fields)
	return reportID
}

// Append adds one sample to the live buffer, flushing a full chunk first
// when the buffer is at the threshold. Called from the subscription
// goroutine; insertion order is arrival order.
func (r *Recorder) Append(sample producer.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) >= FlushThreshold {
		r.flushLocked(r.buffer)
		r.buffer = nil
	}
	r.buffer = append(r.buffer, sample)
}

// BufferLen reports the live buffer size.
func (r *Recorder) BufferLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// SegmentIDs returns the ids of segments flushed so far this session.
func (r *Recorder) SegmentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.segmentIDs...)
}

func (r *Recorder) consume(sub *producer.Subscriber) {
	for sample := range sub.C {
		r.Append(sample)
	}
}

// flushLocked snapshots the given samples into a segment record and hands
// it to the async writer. Caller holds the mutex; Enqueue never blocks.
func (r *Recorder) flushLocked(samples []producer.Sample) {
	snapshot := append([]producer.Sample(nil), samples...)
	id := uuid.NewString()
	r.writer.Enqueue(store.CollectionSegments, id, map[string]any{
		"samples":     snapshot,
		"app_version": r.appVersion,
	})
	r.segmentIDs = append(r.segmentIDs, id)
	log.Printf("recorder: flushed segment %s (%d samples)", id, len(snapshot))
}

func (r *Recorder) resetLocked() {
	r.active = false
	r.startTime = 0
	r.startLoc = geo.Coordinate{}
	r.buffer = nil
	r.segmentIDs = nil
	r.sub = nil
}

func (r *Recorder) boundary() {
	if r.onBoundary != nil {
		r.onBoundary()
	}
}

func summaryFields(meta Metadata, start, last geo.Coordinate, startTime float64, segmentIDs []string, timestamp float64, appVersion string) map[string]any {
	return map[string]any{
		"user_id":               meta.UserID,
		"timestamp":             timestamp,
		"hazard_tags":           meta.HazardTags,
		"intensity_values":      meta.IntensityValues,
		"segment_ids":           segmentIDs,
		"image_id":              meta.ImageID,
		"last_location":         last,
		"start_location":        start,
		"start_time":            startTime,
		"building_info":         meta.BuildingInfo,
		"detection_sensitivity": meta.DetectionSensitivity,
		"app_version":           appVersion,
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
