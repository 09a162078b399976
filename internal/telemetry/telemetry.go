// Package telemetry records inference outcomes as Prometheus metrics and as
// in-process latency statistics.
package telemetry

import "time"

type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeInvokeError Outcome = "invoke_error"
)

// Recorder is notified once per processed record. Latency is zero unless
// the outcome is OutcomeOK.
type Recorder interface {
	Record(o Outcome, latency time.Duration)
}

type multi []Recorder

func (m multi) Record(o Outcome, latency time.Duration) {
	for _, r := range m {
		r.Record(o, latency)
	}
}

// Tee fans a record out to every non-nil recorder.
func Tee(rs ...Recorder) Recorder {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
