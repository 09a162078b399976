package telemetry

import (
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a latency sample set in microseconds.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_us"`
	Median float64 `json:"median_us"`
	P95    float64 `json:"p95_us"`
	Min    float64 `json:"min_us"`
	Max    float64 `json:"max_us"`
	StdDev float64 `json:"stddev_us"`
}

// Summarize computes a Summary over values. values is not modified.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: median(sorted),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// median averages the two middle samples of an even-sized set.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// DefaultWindow is the number of recent latencies Stats keeps.
const DefaultWindow = 4096

// Stats counts outcomes and keeps a sliding window of latencies.
// It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	counts map[Outcome]uint64
	window []float64
	next   int
	full   bool
}

func NewStats(window int) *Stats {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Stats{counts: make(map[Outcome]uint64), window: make([]float64, window)}
}

func (s *Stats) Record(o Outcome, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[o]++
	if o != OutcomeOK {
		return
	}
	s.window[s.next] = float64(latency) / float64(time.Microsecond)
	s.next++
	if s.next == len(s.window) {
		s.next, s.full = 0, true
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Records      uint64  `json:"records"`
	OK           uint64  `json:"ok"`
	ParseErrors  uint64  `json:"parse_errors"`
	InvokeErrors uint64  `json:"invoke_errors"`
	Latency      Summary `json:"latency"`
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	n := s.next
	if s.full {
		n = len(s.window)
	}
	values := slices.Clone(s.window[:n])
	snap := Snapshot{
		OK:           s.counts[OutcomeOK],
		ParseErrors:  s.counts[OutcomeParseError],
		InvokeErrors: s.counts[OutcomeInvokeError],
	}
	s.mu.Unlock()

	snap.Records = snap.OK + snap.ParseErrors + snap.InvokeErrors
	snap.Latency = Summarize(values)
	return snap
}
