package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/locus/internal/api"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/pipeline"
	"github.com/samcharles93/locus/internal/serialport"
	"github.com/samcharles93/locus/internal/telemetry"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the prediction API, optionally alongside a serial device loop",
		Flags: append(append(append(commonModelFlags(), quantFlags()...), deviceFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			applyDeviceConfig(cmd, fileConfig)
			applyServeConfig(cmd, fileConfig, &addr)

			eng, err := loadEngine(cmd, log)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := telemetry.NewMetrics(reg)
			metrics.SetArenaUsed(eng.Info().ArenaUsed)
			stats := telemetry.NewStats(0)
			recorder := telemetry.Tee(stats, metrics)

			// The API and the device loop share one engine.
			shared := pipeline.Synchronized(eng)
			apiPipeline := pipeline.New(shared, recordParser(), log.With("component", "api"))
			apiPipeline.Recorder = recorder

			server := api.NewServer(api.NewPredictionService(apiPipeline, eng.Info), stats, reg)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("starting server", "address", addr)
				sc := echo.StartConfig{
					Address: addr,
					BeforeServeFunc: func(srv *http.Server) error {
						srv.ReadHeaderTimeout = readTimeout
						return nil
					},
				}
				return sc.Start(ctx, e)
			})
			if device != "" {
				g.Go(func() error {
					port, err := openDevice(ctx, serialport.DefaultSettle, log)
					if err != nil {
						return err
					}
					defer port.Close()
					stop := context.AfterFunc(ctx, func() { _ = port.Close() })
					defer stop()
					devPipeline := pipeline.New(shared, recordParser(), log.With("component", "device", "device", port.Device()))
					devPipeline.Recorder = recorder
					if err := devPipeline.Run(ctx, port, port); err != nil && ctx.Err() == nil {
						return err
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
