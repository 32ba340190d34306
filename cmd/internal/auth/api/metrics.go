package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Security counters. Refresh reuse gets its own series because it is the one
// signal that indicates token theft rather than client error.
var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_auth_login_attempts_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_auth_registrations_total",
		Help: "Successful registrations.",
	})

	refreshRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_auth_refresh_rotations_total",
		Help: "Successful refresh token rotations.",
	})

	refreshReuse = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_auth_refresh_reuse_total",
		Help: "Refresh token reuse incidents (sessions collapsed).",
	})
)
