package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// once guards registration: the prometheus registry panics on duplicate
// collectors.
var once sync.Once

var (
	// ValidationsTotal counts finished validation attempts by verdict.
	// verdict is "ok" or "broken".
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinylink_validations_total",
			Help: "Total number of link validation attempts.",
		},
		[]string{"verdict"},
	)

	// RedirectsTotal counts served redirects.
	RedirectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tinylink_redirects_total",
			Help: "Total number of served redirects.",
		},
	)
)

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			ValidationsTotal,
			RedirectsTotal,
		)
	})
}
