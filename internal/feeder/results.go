package feeder

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/samcharles93/locus/internal/telemetry"
)

// WriteResults writes one CSV row per result. Fields that were not received
// are left empty.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	header := []string{
		"sample_id", "true_x", "true_y", "predicted_x", "predicted_y",
		"inference_time_us", "inference_time_ms", "success", "error_x", "error_y",
	}
	for i := range SensorCount {
		header = append(header, SensorColumn(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, r := range results {
		row := []string{r.Sample.ID, f(r.Sample.TrueX), f(r.Sample.TrueY), "", "", "", "", strconv.FormatBool(r.Success), "", ""}
		if r.Success {
			row[3], row[4] = f(r.X), f(r.Y)
			row[8], row[9] = f(r.ErrorX()), f(r.ErrorY())
		}
		if r.HasLatency {
			row[5] = strconv.FormatInt(r.LatencyUs, 10)
			row[6] = strconv.FormatFloat(float64(r.LatencyUs)/1000, 'f', 3, 64)
		}
		for _, v := range r.Sample.Sensors {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary aggregates a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	MeanErrX  float64
	MeanErrY  float64
	Latency   telemetry.Summary
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	var lat []float64
	for _, r := range results {
		if !r.Success {
			s.Failed++
			continue
		}
		s.Succeeded++
		if r.HasLatency {
			lat = append(lat, float64(r.LatencyUs))
		}
		s.MeanErrX += r.ErrorX()
		s.MeanErrY += r.ErrorY()
	}
	if s.Succeeded > 0 {
		s.MeanErrX /= float64(s.Succeeded)
		s.MeanErrY /= float64(s.Succeeded)
	}
	s.Latency = telemetry.Summarize(lat)
	return s
}

func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var n int64
	p := func(format string, args ...any) error {
		m, err := fmt.Fprintf(w, format, args...)
		n += int64(m)
		return err
	}
	if err := p("Total samples processed: %d\nSuccessful predictions: %d\nFailed predictions: %d\n",
		s.Total, s.Succeeded, s.Failed); err != nil {
		return n, err
	}
	if s.Succeeded > 0 {
		if err := p("Mean absolute error: X=%.6f Y=%.6f\n", s.MeanErrX, s.MeanErrY); err != nil {
			return n, err
		}
	}
	if l := s.Latency; l.Count > 0 {
		err := p("\n--- Inference Time Statistics ---\n"+
			"Average: %.2f μs (%.2f ms)\n"+
			"Median:  %.2f μs (%.2f ms)\n"+
			"Min:     %.2f μs (%.2f ms)\n"+
			"Max:     %.2f μs (%.2f ms)\n"+
			"Std Dev: %.2f μs\n",
			l.Mean, l.Mean/1000, l.Median, l.Median/1000, l.Min, l.Min/1000, l.Max, l.Max/1000, l.StdDev)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
