package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/kernel"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/model"
)

func packCmd() *cli.Command {
	var (
		specPath string
		outPath  string
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Pack a YAML model description into an .mcf container",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"s"},
				Usage:       "path to the YAML model description",
				Destination: &specPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .mcf path (default: $" + envLocusPackOutDir + " or ./out, named after the spec)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			raw, err := os.ReadFile(specPath)
			if err != nil {
				return err
			}
			spec, err := model.ParsePackSpec(raw)
			if err != nil {
				return err
			}
			data, err := model.Pack(spec, kernel.SchemaVersion)
			if err != nil {
				return fmt.Errorf("pack %s: %w", specPath, err)
			}

			out, defaulted, err := resolvePackOut(specPath, outPath)
			if err != nil {
				return err
			}
			if defaulted {
				log.Debug("no --out given, using default", "out", out)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			log.Info("packed model", "name", spec.Name, "layers", len(spec.Layers), "bytes", len(data), "out", out)
			fmt.Println(out)
			return nil
		},
	}
}
