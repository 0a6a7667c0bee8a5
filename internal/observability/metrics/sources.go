package metrics

import "time"

// Resolution outcomes.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultFailed   = "failed"
)

// Resolution records a finished source resolution.
func Resolution(network, result string, d time.Duration) {
	if !enabled {
		return
	}
	resolutionTotal.WithLabelValues(network, result).Inc()
	resolutionDuration.WithLabelValues(network).Observe(d.Seconds())
}

// FilesFetched records source files downloaded for a resolution.
func FilesFetched(network string, n int) {
	if !enabled || n == 0 {
		return
	}
	filesFetchedTotal.WithLabelValues(network).Add(float64(n))
}
