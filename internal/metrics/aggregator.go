// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/providers"
)

// Outcome describes one finished backend call.
type Outcome struct {
	Backend     string
	Duration    time.Duration
	PromptChars int
	OutputChars int
	Err         error
}

// Aggregator collects and manages per-backend call metrics.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*BackendMetrics
	filePath string
}

var (
	instance *Aggregator
	once     sync.Once
)

// GetInstance returns the process-wide Aggregator.
func GetInstance() *Aggregator {
	once.Do(func() {
		instance = NewAggregator("")
	})
	return instance
}

// NewAggregator creates an Aggregator. When filePath is set, previously
// saved metrics are loaded from it and Save writes back to it.
func NewAggregator(filePath string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*BackendMetrics),
		filePath: filePath,
	}
	agg.load()
	return agg
}

// load reads metrics from the JSON file into memory.
func (a *Aggregator) load() {
	if a.filePath == "" {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return
	}

	var metricsSlice []*BackendMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		logging.LogEvent("[METRICS] ignoring unreadable metrics file %s: %v", a.filePath, err)
		return
	}

	for _, m := range metricsSlice {
		a.metrics[m.Backend] = m
	}
}

// Save writes the current metrics to the configured file, if any.
func (a *Aggregator) Save() error {
	if a.filePath == "" {
		return nil
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(a.filePath, data, 0o644)
}

// Record updates the metrics for a backend with one finished call.
func (a *Aggregator) Record(o Outcome) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	backendMetrics, exists := a.metrics[o.Backend]
	if !exists {
		backendMetrics = &BackendMetrics{Backend: o.Backend}
		a.metrics[o.Backend] = backendMetrics
	}
	backendMetrics.LastUpdatedUTC = time.Now().UTC()

	updateStats(&backendMetrics.OverallStats, o)

	bucket := getBucket(o.PromptChars)
	for i := range backendMetrics.PromptBuckets {
		if backendMetrics.PromptBuckets[i].Bucket == bucket {
			updateStats(&backendMetrics.PromptBuckets[i].Stats, o)
			return
		}
	}
	newBucket := PerformanceBucket{Dimension: "prompt_chars", Bucket: bucket}
	updateStats(&newBucket.Stats, o)
	backendMetrics.PromptBuckets = append(backendMetrics.PromptBuckets, newBucket)
}

// Snapshot returns a deep copy of the metrics, ordered by backend name.
func (a *Aggregator) Snapshot() []BackendMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]BackendMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		cp := *m
		cp.PromptBuckets = append([]PerformanceBucket(nil), m.PromptBuckets...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })
	return out
}

// Reset drops every recorded metric.
func (a *Aggregator) Reset() {
	a.mutex.Lock()
	a.metrics = make(map[string]*BackendMetrics)
	a.mutex.Unlock()
}

// updateStats updates the running statistics with one outcome.
func updateStats(stats *RunningAggregatedStats, o Outcome) {
	stats.TotalRequests++
	switch {
	case o.Err == nil:
	case errors.Is(o.Err, providers.ErrCancelled):
		stats.Cancellations++
	case errors.Is(o.Err, providers.ErrTimeout):
		stats.Timeouts++
	case errors.Is(o.Err, providers.ErrEmptyResponse):
		stats.EmptyResponses++
	default:
		stats.Failures++
	}

	updateRunningStat(&stats.DurationMillis, float64(o.Duration.Milliseconds()))
	updateRunningStat(&stats.PromptChars, float64(o.PromptChars))
	if o.Err == nil {
		updateRunningStat(&stats.OutputChars, float64(o.OutputChars))
	}
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
	rs.refreshStdDev()
}

// getBucket determines the performance bucket for a prompt of the given size.
func getBucket(promptChars int) string {
	switch {
	case promptChars <= 4_000:
		return "0-4k"
	case promptChars <= 16_000:
		return "4k-16k"
	case promptChars <= 64_000:
		return "16k-64k"
	case promptChars <= 256_000:
		return "64k-256k"
	default:
		return "256k+"
	}
}

// Close saves the singleton aggregator, if one was created.
func Close() {
	if instance != nil {
		if err := instance.Save(); err != nil {
			logging.LogEvent("[METRICS] save failed: %v", err)
		}
	}
}
