// Package detector decides when a walking trip starts and stops. It polls
// the last known position on a fixed cadence, classifies each interval as
// moving or stationary, and fires the session callbacks once one state has
// held for the configured dwell time. Polling rather than reacting to
// events is what makes stop detection work: a stationary phone goes quiet,
// the ticker does not.
package detector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
)

// PositionReader is the producer-side view the detector needs.
type PositionReader interface {
	Current() geo.Coordinate
	HasFix() bool
}

// SettingsReader supplies the live-tunable knobs. DwellSeconds is read on
// every check so threshold changes apply without a restart.
type SettingsReader interface {
	DetectionEnabled(ctx context.Context) bool
	DwellSeconds(ctx context.Context) int
}

// Notifier is the local notification sink.
type Notifier interface {
	SendNow(ctx context.Context, title, body string, rateLimitSeconds int, key string)
}

const noLocationRateLimitSec = 3600

type Detector struct {
	position PositionReader
	settings SettingsReader
	notifier Notifier

	// active mirrors the recorder's session state; the detector never
	// tracks recording on its own.
	active  func() bool
	onStart func()
	onStop  func()

	movementThresholdM float64
	checkInterval      time.Duration
	now                func() time.Time

	mu               sync.Mutex
	setupDone        bool
	cancel           context.CancelFunc
	lastCoord        geo.Coordinate
	haveLast         bool
	lastMovementAt   time.Time
	lastStationaryAt time.Time
}

func NewDetector(
	position PositionReader,
	settings SettingsReader,
	notifier Notifier,
	active func() bool,
	onStart, onStop func(),
	movementThresholdM float64,
	checkInterval time.Duration,
) *Detector {
	if movementThresholdM <= 0 {
		movementThresholdM = 10
	}
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	return &Detector{
		position:           position,
		settings:           settings,
		notifier:           notifier,
		active:             active,
		onStart:            onStart,
		onStop:             onStop,
		movementThresholdM: movementThresholdM,
		checkInterval:      checkInterval,
		now:                time.Now,
	}
}

// Enable starts the check ticker. The setup runs exactly once per process
// lifetime; later calls are no-ops even after Disable.
func (d *Detector) Enable(ctx context.Context) {
	d.mu.Lock()
	if d.setupDone {
		d.mu.Unlock()
		log.Printf("detector: already initialized, ignoring enable")
		return
	}
	d.setupDone = true
	now := d.now()
	d.lastMovementAt = now
	d.lastStationaryAt = now
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	go d.loop(runCtx)
}

// Disable invalidates the check ticker.
func (d *Detector) Disable() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset re-synchronizes both dwell timestamps to now. Called whenever a
// session boundary is crossed through any path, manual or automatic, so a
// fresh session is not immediately re-triggered.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.lastMovementAt = now
	d.lastStationaryAt = now
}

func (d *Detector) loop(ctx context.Context) {
	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Check(ctx)
		}
	}
}

// Check runs one detection pass: classify the latest movement, extend the
// matching dwell timestamp, and fire a transition if the other state has
// lapsed.
func (d *Detector) Check(ctx context.Context) {
	if !d.settings.DetectionEnabled(ctx) {
		return
	}

	latest := d.position.Current()
	dwell := time.Duration(d.settings.DwellSeconds(ctx)) * time.Second

	d.mu.Lock()
	now := d.now()

	moving := false
	if d.haveLast {
		dist := geo.HaversineM(d.lastCoord.Lat, d.lastCoord.Lng, latest.Lat, latest.Lng)
		moving = dist > d.movementThresholdM
	}
	d.lastCoord = latest
	d.haveLast = true

	if moving {
		d.lastMovementAt = now
	} else {
		d.lastStationaryAt = now
	}

	recording := d.active()
	var fire func()
	switch {
	case recording && d.lastStationaryAt.Sub(d.lastMovementAt) >= dwell:
		fire = d.stopTrip
		d.lastMovementAt = now
		d.lastStationaryAt = now
	case !recording && d.lastMovementAt.Sub(d.lastStationaryAt) >= dwell:
		if !d.position.HasFix() {
			d.mu.Unlock()
			if d.notifier != nil {
				d.notifier.SendNow(ctx, "Can't start your trip",
					"Walking detected, but your location isn't available.",
					noLocationRateLimitSec, "no-location")
			}
			return
		}
		fire = d.startTrip
		d.lastMovementAt = now
		d.lastStationaryAt = now
	}
	d.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (d *Detector) startTrip() {
	log.Printf("detector: dwell elapsed while moving, starting trip")
	if d.onStart != nil {
		d.onStart()
	}
	if d.notifier != nil {
		d.notifier.SendNow(context.Background(), "Trip started",
			"Looks like you're walking. Recording your trip.", 60, "trip-start")
	}
}

func (d *Detector) stopTrip() {
	log.Printf("detector: dwell elapsed while stationary, stopping trip")
	if d.onStop != nil {
		d.onStop()
	}
	if d.notifier != nil {
		d.notifier.SendNow(context.Background(), "Trip complete",
			"You stopped walking. Review and submit your trip.", 60, "trip-stop")
	}
}
