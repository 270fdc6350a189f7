package producer

import (
	"context"
	"errors"

	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
)

// ErrPermissionDenied is returned by a Source whose platform location
// capability is denied or restricted.
var ErrPermissionDenied = errors.New("location permission denied")

// Fix is one raw position update from a location driver.
type Fix struct {
	Coordinate geo.Coordinate
	SensorID   int
}

// Source is the platform location driver seam. Authorize requests the
// location capability; Updates delivers fixes for as long as the driver
// runs.
type Source interface {
	Authorize(ctx context.Context) error
	Updates() <-chan Fix
}

// PushSource is a Source fed over the ingest API: the device posts its
// fixes instead of this process owning GPS hardware. Authorization always
// succeeds; pushes never block the caller.
type PushSource struct {
	updates chan Fix
}

func NewPushSource() *PushSource {
	return &PushSource{updates: make(chan Fix, 64)}
}

func (s *PushSource) Authorize(context.Context) error { return nil }

func (s *PushSource) Updates() <-chan Fix { return s.updates }

// Push hands a fix to the producer. Returns false if the buffer is full
// and the fix was dropped.
func (s *PushSource) Push(coord geo.Coordinate, sensorID int) bool {
	select {
	case s.updates <- Fix{Coordinate: coord, SensorID: sensorID}:
		return true
	default:
		return false
	}
}
