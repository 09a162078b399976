package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/feeder"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/pipeline"
	"github.com/samcharles93/locus/internal/serialport"
)

func feedCmd() *cli.Command {
	var (
		samplesPath string
		resultsPath string
		local       bool
		timeout     time.Duration
		delay       time.Duration
		warmup      time.Duration
		limit       int
	)

	return &cli.Command{
		Name:  "feed",
		Usage: "Send CSV samples to a device (or an in-process engine) and score the predictions",
		Flags: append(append(append(commonModelFlags(), quantFlags()...), deviceFlags()...),
			&cli.StringFlag{
				Name:        "samples",
				Usage:       "CSV file with sensor_00..sensor_15, true_x and true_y columns",
				Destination: &samplesPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "results CSV path",
				Value:       "predictions_results.csv",
				Destination: &resultsPath,
			},
			&cli.BoolFlag{
				Name:        "local",
				Usage:       "run samples through an in-process engine instead of a device",
				Destination: &local,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "how long to wait for each reply",
				Value:       feeder.DefaultTimeout,
				Destination: &timeout,
			},
			&cli.DurationFlag{
				Name:        "delay",
				Usage:       "pause between samples",
				Value:       feeder.DefaultDelay,
				Destination: &delay,
			},
			&cli.DurationFlag{
				Name:        "warmup",
				Usage:       "drain device output for this long before the first sample",
				Value:       serialport.DefaultSettle,
				Destination: &warmup,
			},
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "feed at most this many samples (0 = all)",
				Destination: &limit,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, fileConfig)
			if !local && device == "" {
				return errors.New("feed: either --device or --local is required")
			}

			sf, err := os.Open(samplesPath)
			if err != nil {
				return err
			}
			samples, err := feeder.ReadSamples(sf)
			_ = sf.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", samplesPath, err)
			}
			if limit > 0 && limit < len(samples) {
				samples = samples[:limit]
			}
			log.Info("loaded samples", "count", len(samples), "path", samplesPath)

			var conn io.ReadWriteCloser
			if local {
				applyModelConfig(cmd, fileConfig)
				eng, err := loadEngine(cmd, log)
				if err != nil {
					return err
				}
				p := pipeline.New(eng, recordParser(), log.With("component", "pipeline"))
				conn = feeder.NewLocalConn(ctx, p)
				warmup = 0
			} else {
				// The feeder's warmup drains the reset banner, so no settle here.
				port, err := openDevice(ctx, 0, log)
				if err != nil {
					return err
				}
				conn = port
			}
			defer func() { _ = conn.Close() }()

			f := &feeder.Feeder{
				Conn:     conn,
				Timeout:  timeout,
				Delay:    delay,
				Warmup:   warmup,
				Log:      log,
				OnResult: func(i int, r feeder.Result) { printResult(os.Stdout, i, len(samples), r) },
			}
			results, runErr := f.Run(ctx, samples)

			out, err := os.Create(resultsPath)
			if err != nil {
				return err
			}
			if err := feeder.WriteResults(out, results); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Printf("\nResults saved to %s\n\n", resultsPath)
			if _, err := feeder.Summarize(results).WriteTo(os.Stdout); err != nil {
				return err
			}
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}
}

func printResult(w io.Writer, i, total int, r feeder.Result) {
	fmt.Fprintf(w, "[%d/%d] sample %s: ", i+1, total, r.Sample.ID)
	if !r.Success {
		fmt.Fprintf(w, "FAILED (%s)\n", r.Err)
		return
	}
	fmt.Fprintf(w, "pred=(%.4f, %.4f) true=(%.4f, %.4f) err=(%.4f, %.4f)",
		r.X, r.Y, r.Sample.TrueX, r.Sample.TrueY, r.ErrorX(), r.ErrorY())
	if r.HasLatency {
		fmt.Fprintf(w, " %d μs", r.LatencyUs)
	}
	fmt.Fprintln(w)
}
