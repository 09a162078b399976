package feeder

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reX         = regexp.MustCompile(`Predicted X:\s*([-+]?\d*\.?\d+)`)
	reY         = regexp.MustCompile(`Predicted Y:\s*([-+]?\d*\.?\d+)`)
	reLatencyUs = regexp.MustCompile(`Inference time:\s*(\d+)\s*[μu]s`)
	reLatencyMs = regexp.MustCompile(`Inference time:\s*([-+]?\d*\.?\d+)\s*ms`)
)

// Reply accumulates the fields scraped from the lines answering one record.
type Reply struct {
	X, Y      *float64
	LatencyUs *int64
	// Err holds the message of an "Error:" line.
	Err string
}

// Complete reports whether x, y and the latency have all been seen.
func (r *Reply) Complete() bool {
	return r.X != nil && r.Y != nil && r.LatencyUs != nil
}

// Done reports whether no further lines are expected for this record.
func (r *Reply) Done() bool {
	return r.Complete() || r.Err != ""
}

// Scan folds one reply line into r.
func (r *Reply) Scan(line string) {
	line = strings.TrimSpace(line)
	if msg, ok := strings.CutPrefix(line, "Error:"); ok {
		r.Err = strings.TrimSpace(msg)
		return
	}
	if m := reX.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.X = &v
		}
	}
	if m := reY.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.Y = &v
		}
	}
	if strings.Contains(line, "Inference time:") {
		if m := reLatencyUs.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				r.LatencyUs = &v
			}
		} else if m := reLatencyMs.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				us := int64(math.Round(v * 1000))
				r.LatencyUs = &us
			}
		}
	}
}
