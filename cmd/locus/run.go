package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/pipeline"
	"github.com/samcharles93/locus/internal/serialport"
	"github.com/samcharles93/locus/internal/telemetry"
)

func runCmd() *cli.Command {
	var inputPath string

	return &cli.Command{
		Name:  "run",
		Usage: "Read records from a serial device, a file or stdin and print predictions",
		Flags: append(append(append(commonModelFlags(), quantFlags()...), deviceFlags()...),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "read records from a file instead of stdin (ignored with --device)",
				Destination: &inputPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			applyDeviceConfig(cmd, fileConfig)

			eng, err := loadEngine(cmd, log)
			if err != nil {
				return err
			}
			stats := telemetry.NewStats(0)
			p := pipeline.New(eng, recordParser(), log.With("component", "pipeline"))
			p.Recorder = stats

			var (
				in  io.Reader = os.Stdin
				out io.Writer = os.Stdout
			)
			switch {
			case device != "":
				port, err := openDevice(ctx, serialport.DefaultSettle, log)
				if err != nil {
					return err
				}
				defer port.Close()
				stop := context.AfterFunc(ctx, func() { _ = port.Close() })
				defer stop()
				if _, err := fmt.Fprintf(port, "locus ready: model %s\n", eng.Info().Name); err != nil {
					return err
				}
				p.Log = p.Log.With("device", port.Device())
				log.Info("reading records from device", "device", port.Device())
				in, out = port, port
			case inputPath != "":
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			err = p.Run(ctx, in, out)
			snap := stats.Snapshot()
			log.Info("run finished",
				"records", snap.Records,
				"ok", snap.OK,
				"parse_errors", snap.ParseErrors,
				"invoke_errors", snap.InvokeErrors,
				"mean_us", snap.Latency.Mean,
			)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

// loadEngine resolves the model path and performs the one-time engine
// setup. Setup failures are fatal for every command that needs an engine.
func loadEngine(cmd *cli.Command, log logger.Logger) (*engine.Engine, error) {
	path, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	eng, err := engine.Load(path, engineConfig(cmd, fileConfig), engine.WithLogger(log.With("component", "engine")))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return eng, nil
}

// openDevice opens the --device port. On failure it lists the serial
// devices that are present so the operator can pick the right one.
func openDevice(ctx context.Context, settle time.Duration, log logger.Logger) (*serialport.Port, error) {
	port, err := serialport.Open(ctx, serialport.Config{
		Device: device,
		Baud:   int(baud),
		Settle: settle,
	}, log)
	if err == nil {
		return port, nil
	}
	if ports := serialport.List(); len(ports) > 0 {
		_, _ = fmt.Fprintln(os.Stderr, "available serial devices:")
		for _, p := range ports {
			_, _ = fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
	} else {
		_, _ = fmt.Fprintln(os.Stderr, "no serial devices found")
	}
	return nil, err
}
