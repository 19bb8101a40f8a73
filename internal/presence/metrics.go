package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_checkins_total",
			Help: "Total number of check-in attempts by result",
		},
		[]string{"result"}, // ok, no_capability, location_error, too_far, request_error
	)

	checkOutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_checkouts_total",
			Help: "Total number of checkout attempts by result",
		},
		[]string{"result"}, // ok, noop, request_error
	)

	pushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_push_events_total",
			Help: "Total number of push events applied to the store",
		},
		[]string{"event"},
	)

	rosterSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_roster_size",
			Help: "Number of other attendees at the current venue",
		},
	)

	checkedIn = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_checked_in",
			Help: "1 while a presence session is active, 0 otherwise",
		},
	)
)
