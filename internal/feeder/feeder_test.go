package feeder

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/features"
	"github.com/samcharles93/locus/internal/kernel"
	"github.com/samcharles93/locus/internal/model/modeltest"
	"github.com/samcharles93/locus/internal/pipeline"
)

func samplesCSV(rows int, withID bool) string {
	var b strings.Builder
	if withID {
		b.WriteString("sample_id,")
	}
	for i := range SensorCount {
		b.WriteString(SensorColumn(i) + ",")
	}
	b.WriteString("true_x,true_y\n")
	for r := range rows {
		if withID {
			fmt.Fprintf(&b, "s%d,", r)
		}
		for i := range SensorCount {
			fmt.Fprintf(&b, "%d.5,", i+r)
		}
		fmt.Fprintf(&b, "%d.25,-%d.75\n", r, r)
	}
	return b.String()
}

func TestReadSamples(t *testing.T) {
	t.Parallel()

	got, err := ReadSamples(strings.NewReader(samplesCSV(2, true)))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[1].ID)
	assert.Equal(t, 1.5, got[1].Sensors[0])
	assert.Equal(t, 16.5, got[1].Sensors[15])
	assert.Equal(t, 1.25, got[1].TrueX)
	assert.Equal(t, -1.75, got[1].TrueY)
	assert.Equal(t, "1.5,2.5,3.5,4.5,5.5,6.5,7.5,8.5,9.5,10.5,11.5,12.5,13.5,14.5,15.5,16.5", got[1].Record())

	got, err = ReadSamples(strings.NewReader(samplesCSV(1, false)))
	require.NoError(t, err)
	assert.Equal(t, "0", got[0].ID)
}

func TestReadSamplesMissingColumns(t *testing.T) {
	t.Parallel()

	_, err := ReadSamples(strings.NewReader("sensor_00,true_x\n1,2\n"))
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "sensor_15")
	assert.Contains(t, err.Error(), "true_y")
	assert.NotContains(t, err.Error(), "sensor_00,")
}

func TestReadSamplesBadNumber(t *testing.T) {
	t.Parallel()

	in := strings.Replace(samplesCSV(1, false), "3.5,", "x,", 1)
	_, err := ReadSamples(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor_03")
}

func TestReplyScan(t *testing.T) {
	t.Parallel()

	var r Reply
	r.Scan("Input: 1,2,3")
	r.Scan("Predicted X: 0.123456")
	assert.False(t, r.Done())
	r.Scan("Predicted Y: -1.5")
	r.Scan("Inference time: 152 μs (0.15 ms)")
	require.True(t, r.Complete())
	assert.Equal(t, 0.123456, *r.X)
	assert.Equal(t, -1.5, *r.Y)
	assert.Equal(t, int64(152), *r.LatencyUs)

	var ms Reply
	ms.Scan("Inference time: 15.23 ms")
	require.NotNil(t, ms.LatencyUs)
	assert.Equal(t, int64(15230), *ms.LatencyUs)

	var us Reply
	us.Scan("Inference time: 99 us")
	assert.Equal(t, int64(99), *us.LatencyUs)

	var e Reply
	e.Scan("Error: expected 16 values, got 15")
	assert.True(t, e.Done())
	assert.False(t, e.Complete())
	assert.Equal(t, "expected 16 values, got 15", e.Err)
}

// device answers each record line with respond(record) on a pipe.
type device struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	mu      sync.Mutex
	pending string
	respond func(n int, record string) string
	n       int
}

func newDevice(respond func(n int, record string) string) *device {
	pr, pw := io.Pipe()
	return &device{pr: pr, pw: pw, respond: respond}
}

func (d *device) Read(b []byte) (int, error) { return d.pr.Read(b) }

func (d *device) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending += string(b)
	for {
		rec, rest, ok := strings.Cut(d.pending, "\n")
		if !ok {
			break
		}
		d.pending = rest
		if reply := d.respond(d.n, rec); reply != "" {
			go io.WriteString(d.pw, reply)
		}
		d.n++
	}
	return len(b), nil
}

func TestFeederScrapesReplies(t *testing.T) {
	t.Parallel()

	samples, err := ReadSamples(strings.NewReader(samplesCSV(3, true)))
	require.NoError(t, err)

	dev := newDevice(func(n int, rec string) string {
		switch n {
		case 1:
			return "" // no reply: times out
		case 2:
			return "Error: inference failed\n"
		}
		return fmt.Sprintf("Input: %s\nPredicted X: 0.500000\nPredicted Y: -0.250000\nInference time: 120 μs (0.12 ms)\n", rec)
	})
	defer dev.pw.Close()

	var seen []int
	f := &Feeder{Conn: dev, Timeout: 150 * time.Millisecond, OnResult: func(i int, _ Result) { seen = append(seen, i) }}
	results, err := f.Run(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{0, 1, 2}, seen)

	ok := results[0]
	assert.True(t, ok.Success)
	assert.Equal(t, 0.5, ok.X)
	assert.Equal(t, int64(120), ok.LatencyUs)
	assert.InDelta(t, 0.25, ok.ErrorX(), 1e-12)
	assert.InDelta(t, 0.5, ok.ErrorY(), 1e-12)

	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Err, "timed out")
	assert.False(t, results[2].Success)
	assert.Equal(t, "inference failed", results[2].Err)

	sum := Summarize(results)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.Latency.Count)

	var out bytes.Buffer
	_, err = sum.WriteTo(&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Successful predictions: 1")
	assert.Contains(t, out.String(), "Average: 120.00 μs (0.12 ms)")
}

func TestFeederCancel(t *testing.T) {
	t.Parallel()

	samples, err := ReadSamples(strings.NewReader(samplesCSV(1, false)))
	require.NoError(t, err)
	dev := newDevice(func(int, string) string { return "" })
	defer dev.pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = (&Feeder{Conn: dev, Timeout: time.Minute}).Run(ctx, samples)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriteResults(t *testing.T) {
	t.Parallel()

	s := Sample{ID: "a", Sensors: make([]float64, SensorCount), TrueX: 1, TrueY: 2}
	results := []Result{
		{Sample: s, X: 1.5, Y: 1, LatencyUs: 1500, HasLatency: true, Success: true},
		{Sample: s, Err: "timed out"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "sample_id", rows[0][0])
	assert.Equal(t, "sensor_15", rows[0][len(rows[0])-1])
	assert.Equal(t, []string{"a", "1.000000", "2.000000", "1.500000", "1.000000", "1500", "1.500", "true", "0.500000", "1.000000"}, rows[1][:10])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "false", rows[2][7])
}

func TestLocalConnAgainstEngine(t *testing.T) {
	t.Parallel()

	e, err := engine.New(modeltest.Open(t, modeltest.Spec(), kernel.SchemaVersion), engine.Config{})
	require.NoError(t, err)
	conn := NewLocalConn(context.Background(), pipeline.New(e, features.DefaultParser(), nil))

	samples, err := ReadSamples(strings.NewReader(samplesCSV(4, true)))
	require.NoError(t, err)
	results, err := (&Feeder{Conn: conn, Timeout: 2 * time.Second}).Run(context.Background(), samples)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Success, r.Err)
		assert.True(t, r.HasLatency)
	}
}

func TestSummarizeMedianAveragesMiddlePair(t *testing.T) {
	t.Parallel()

	var results []Result
	for _, us := range []int64{400, 100, 300, 200} {
		results = append(results, Result{LatencyUs: us, HasLatency: true, Success: true})
	}
	results = append(results, Result{LatencyUs: 9000, HasLatency: true})

	sum := Summarize(results)
	assert.Equal(t, 4, sum.Latency.Count)
	assert.InDelta(t, 250, sum.Latency.Median, 1e-9)

	var out bytes.Buffer
	_, err := sum.WriteTo(&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Median:  250.00 μs (0.25 ms)")
}
