package route

import "github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"

// Route is an ordered, named sequence of labeled waypoints. Immutable once
// loaded; progress tracking never mutates it.
type Route struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	City          string           `json:"city"`
	StartLocation geo.Coordinate   `json:"start_location"`
	EndLocation   geo.Coordinate   `json:"end_location"`
	Waypoints     []geo.RoutePoint `json:"waypoints"`
}

// Progress is a live remaining-distance report against a route.
type Progress struct {
	RouteID       string `json:"route_id"`
	Segment       int    `json:"segment"`
	RemainingFeet int    `json:"remaining_feet"`
	Arrived       bool   `json:"arrived"`
}
