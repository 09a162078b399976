// Package feeder replays labelled sensor samples against a record channel,
// scrapes the predictions from the replies and summarizes accuracy and
// latency.
package feeder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const SensorCount = 16

var ErrMissingColumns = errors.New("feeder: missing required columns")

// SensorColumn returns the CSV header of sensor i.
func SensorColumn(i int) string {
	return fmt.Sprintf("sensor_%02d", i)
}

type Sample struct {
	ID      string
	Sensors []float64
	TrueX   float64
	TrueY   float64
}

// Record renders the sensor values as one comma-separated line without a
// trailing newline.
func (s Sample) Record() string {
	parts := make([]string, len(s.Sensors))
	for i, v := range s.Sensors {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ReadSamples reads a samples CSV with a header row. sensor_00..sensor_15,
// true_x and true_y are required; sample_id is optional and defaults to the
// zero-based row index.
func ReadSamples(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}

	required := make([]string, 0, SensorCount+2)
	for i := range SensorCount {
		required = append(required, SensorColumn(i))
	}
	required = append(required, "true_x", "true_y")
	var missing []string
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	idCol, hasID := cols["sample_id"]

	var samples []Sample
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		field := func(name string) (float64, error) {
			text := strings.TrimSpace(rec[cols[name]])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return 0, fmt.Errorf("row %d column %s: %q is not a number", row+1, name, text)
			}
			return v, nil
		}

		s := Sample{ID: strconv.Itoa(row), Sensors: make([]float64, SensorCount)}
		if hasID && strings.TrimSpace(rec[idCol]) != "" {
			s.ID = strings.TrimSpace(rec[idCol])
		}
		for i := range SensorCount {
			if s.Sensors[i], err = field(SensorColumn(i)); err != nil {
				return nil, err
			}
		}
		if s.TrueX, err = field("true_x"); err != nil {
			return nil, err
		}
		if s.TrueY, err = field("true_y"); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}
