package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/serialport"
	"github.com/samcharles93/locus/pkg/quant"
)

var (
	configFile string
	fileConfig Config

	modelPath  string
	modelsPath string
	arenaSize  int64
	inputs     int64
	strict     bool

	inputScale      float64
	inputZeroPoint  int64
	outputScale     float64
	outputZeroPoint int64

	device string
	baud   int64

	logLevel  string
	logFormat string
	debug     bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .mcf file",
			Sources:     cli.EnvVars(envLocusModel),
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "path to directory containing .mcf models",
			Destination: &modelsPath,
		},
		&cli.Int64Flag{
			Name:        "arena-size",
			Usage:       "tensor arena size in bytes",
			Value:       engine.DefaultArenaSize,
			Destination: &arenaSize,
		},
		&cli.Int64Flag{
			Name:        "inputs",
			Usage:       "feature values per record",
			Value:       engine.DefaultInputs,
			Destination: &inputs,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "reject records with non-numeric fields instead of reading them as 0",
			Destination: &strict,
		},
	}
}

func quantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "input-scale",
			Usage:       "input quantization scale (must match the model when it has one)",
			Destination: &inputScale,
		},
		&cli.Int64Flag{
			Name:        "input-zero-point",
			Usage:       "input quantization zero point",
			Validator:   validZeroPoint,
			Destination: &inputZeroPoint,
		},
		&cli.Float64Flag{
			Name:        "output-scale",
			Usage:       "output quantization scale",
			Destination: &outputScale,
		},
		&cli.Int64Flag{
			Name:        "output-zero-point",
			Usage:       "output quantization zero point",
			Validator:   validZeroPoint,
			Destination: &outputZeroPoint,
		},
	}
}

func validZeroPoint(v int64) error {
	if v < quant.MinCode || v > quant.MaxCode {
		return fmt.Errorf("zero point %d outside [%d, %d]", v, quant.MinCode, quant.MaxCode)
	}
	return nil
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "serial device to read records from (e.g. /dev/ttyUSB0)",
			Destination: &device,
		},
		&cli.Int64Flag{
			Name:        "baud",
			Usage:       "serial baud rate",
			Value:       serialport.DefaultBaud,
			Destination: &baud,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
