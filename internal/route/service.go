package route

import (
	"context"
	"errors"

	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"
	"github.com/pranavjoshi100/safesteps-gps/internal/store"
)

// ArrivedThresholdFeet is how close to the end of a route counts as
// having arrived.
const ArrivedThresholdFeet = 25

var ErrNotFound = errors.New("route not found")

// Getter is the read half of the record store.
type Getter interface {
	GetRecords(ctx context.Context, collection string, filter map[string]any, orderBy string) ([]store.Record, error)
}

// SettingsReader supplies the show-all-routes toggle.
type SettingsReader interface {
	ShowAllRoutes(ctx context.Context) bool
}

type Service struct {
	store    Getter
	settings SettingsReader
	homeCity string
}

func NewService(getter Getter, settings SettingsReader, homeCity string) *Service {
	return &Service{store: getter, settings: settings, homeCity: homeCity}
}

// List returns the route catalog, restricted to the home city unless the
// show-all-routes setting is on.
func (s *Service) List(ctx context.Context) ([]Route, error) {
	filter := map[string]any{}
	if s.settings != nil && !s.settings.ShowAllRoutes(ctx) && s.homeCity != "" {
		filter["city"] = s.homeCity
	}

	records, err := s.store.GetRecords(ctx, store.CollectionRoutes, filter, "name")
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(records))
	for _, rec := range records {
		routes = append(routes, fromRecord(rec))
	}
	return routes, nil
}

func (s *Service) Get(ctx context.Context, id string) (Route, error) {
	records, err := s.store.GetRecords(ctx, store.CollectionRoutes, nil, "")
	if err != nil {
		return Route{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return fromRecord(rec), nil
		}
	}
	return Route{}, ErrNotFound
}

// Progress reports remaining distance along a route from the given
// position.
func (s *Service) Progress(ctx context.Context, id string, from geo.Coordinate) (Progress, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return ProgressFor(r, from), nil
}

// ProgressFor is the pure progress computation against a loaded route.
func ProgressFor(r Route, from geo.Coordinate) Progress {
	remaining := geo.RemainingDistanceFeet(r.Waypoints, from)
	return Progress{
		RouteID:       r.ID,
		Segment:       geo.NearestSegment(r.Waypoints, from),
		RemainingFeet: remaining,
		Arrived:       remaining <= ArrivedThresholdFeet,
	}
}

// fromRecord reconstructs a Route from an opaque record. Missing or
// malformed fields resolve to defaults (zero coordinate, empty label)
// instead of rejecting the record.
func fromRecord(rec store.Record) Route {
	r := Route{
		ID:          rec.ID,
		Name:        str(rec.Fields["name"]),
		Description: str(rec.Fields["description"]),
		City:        str(rec.Fields["city"]),
	}
	r.StartLocation = coord(rec.Fields["start_location"])
	r.EndLocation = coord(rec.Fields["end_location"])

	if raw, ok := rec.Fields["waypoints"].([]any); ok {
		r.Waypoints = make([]geo.RoutePoint, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				r.Waypoints = append(r.Waypoints, geo.RoutePoint{})
				continue
			}
			r.Waypoints = append(r.Waypoints, geo.RoutePoint{
				Lat:   num(m["lat"]),
				Lng:   num(m["lng"]),
				Label: str(m["label"]),
			})
		}
	}
	return r
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func coord(v any) geo.Coordinate {
	m, ok := v.(map[string]any)
	if !ok {
		return geo.Coordinate{}
	}
	return geo.Coordinate{Lat: num(m["lat"]), Lng: num(m["lng"]), Alt: num(m["alt"])}
}
