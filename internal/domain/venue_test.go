package domain

import (
	"strings"
	"testing"
	"time"
)

func TestVenue_HasEnded(t *testing.T) {
	now := time.Now()

	var nilVenue *Venue
	if nilVenue.HasEnded(now) {
		t.Error("Expected nil venue to never be ended")
	}

	open := &Venue{ID: "e1"}
	if open.HasEnded(now) {
		t.Error("Expected venue without end time to never be ended")
	}

	future := now.Add(time.Hour)
	running := &Venue{ID: "e1", EndsAt: &future}
	if running.HasEnded(now) {
		t.Error("Expected running venue to not be ended")
	}

	past := now.Add(-time.Hour)
	finished := &Venue{ID: "e1", EndsAt: &past}
	if !finished.HasEnded(now) {
		t.Error("Expected finished venue to be ended")
	}
}

func TestVenue_DirectionsURL(t *testing.T) {
	origin := GeoPoint{Lat: 52.37, Lng: 4.89}

	var nilVenue *Venue
	if got := nilVenue.DirectionsURL(origin); got != "" {
		t.Errorf("Expected empty URL for nil venue, got %q", got)
	}

	noCoords := &Venue{ID: "e1"}
	if got := noCoords.DirectionsURL(origin); got != "" {
		t.Errorf("Expected empty URL without coordinates, got %q", got)
	}

	v := &Venue{ID: "e1", Coordinate: &GeoPoint{Lat: 51.92, Lng: 4.48}}
	got := v.DirectionsURL(origin)
	if !strings.HasPrefix(got, "https://www.google.com/maps/dir/") {
		t.Errorf("Expected a Google Maps directions link, got %q", got)
	}
	if !strings.Contains(got, "origin=52.37") || !strings.Contains(got, "destination=51.92") {
		t.Errorf("Expected origin and destination in URL, got %q", got)
	}
}
