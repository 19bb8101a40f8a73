// Package domain contains core domain types for the presence agent.
package domain

import (
	"fmt"
	"time"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Venue is a place or event a user can be checked in at.
type Venue struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address,omitempty"`
	Coordinate *GeoPoint  `json:"coordinate,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
}

// HasEnded returns true if the venue has a known end time that has passed.
func (v *Venue) HasEnded(now time.Time) bool {
	if v == nil || v.EndsAt == nil {
		return false
	}
	return now.After(*v.EndsAt)
}

// DirectionsURL builds a Google Maps directions link from origin to the venue.
// Returns empty string if the venue has no known coordinate.
func (v *Venue) DirectionsURL(origin GeoPoint) string {
	if v == nil || v.Coordinate == nil {
		return ""
	}
	return fmt.Sprintf(
		"https://www.google.com/maps/dir/?api=1&origin=%f,%f&destination=%f,%f",
		origin.Lat, origin.Lng, v.Coordinate.Lat, v.Coordinate.Lng,
	)
}
