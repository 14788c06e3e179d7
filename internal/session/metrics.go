package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edutend_sessions_created_total",
		Help: "Attendance sessions created.",
	})
	sessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edutend_sessions_closed_total",
		Help: "Sessions closed by expiry or explicit close.",
	})
	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edutend_sessions_swept_total",
		Help: "Sessions closed by the periodic expiry sweep.",
	})
)
