// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// BackendMetrics is the aggregated record for a single backend.
type BackendMetrics struct {
	Backend        string                 `json:"backend"`
	LastUpdatedUTC time.Time              `json:"last_updated_utc"`
	OverallStats   RunningAggregatedStats `json:"overall_stats"`
	PromptBuckets  []PerformanceBucket    `json:"prompt_buckets"`
}

// PerformanceBucket holds aggregated stats for a specific dimension, like prompt size.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores running counters and timings for a set of calls.
type RunningAggregatedStats struct {
	TotalRequests  int64 `json:"total_requests"`
	Failures       int64 `json:"failures"`
	Timeouts       int64 `json:"timeouts"`
	EmptyResponses int64 `json:"empty_responses"`
	Cancellations  int64 `json:"cancellations"`

	DurationMillis RunningStat `json:"duration_ms"`
	PromptChars    RunningStat `json:"prompt_chars"`
	OutputChars    RunningStat `json:"output_chars"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
// It uses Welford's online algorithm.
type RunningStat struct {
	Count  int64   `json:"-"`
	Mean   float64 `json:"mean"`
	M2     float64 `json:"-"` // Sum of squares of differences from the current mean
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// Variance returns the sample variance of the observed values.
func (rs RunningStat) Variance() float64 {
	if rs.Count < 2 {
		return 0
	}
	return rs.M2 / float64(rs.Count-1)
}

func (rs *RunningStat) refreshStdDev() {
	rs.StdDev = math.Sqrt(rs.Variance())
}
