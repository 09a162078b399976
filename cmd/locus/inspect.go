package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/mcf"
)

type inspectReport struct {
	Path          string           `json:"path"`
	Major         uint16           `json:"major"`
	Minor         uint16           `json:"minor"`
	FileSize      uint64           `json:"file_size"`
	Sections      []inspectSection `json:"sections"`
	SchemaVersion uint32           `json:"schema_version"`
	Graph         model.Graph      `json:"graph"`
	Engine        *engine.Info     `json:"engine,omitempty"`
	SetupError    string           `json:"setup_error,omitempty"`
}

type inspectSection struct {
	Type    string `json:"type"`
	Version uint32 `json:"version"`
	Offset  uint64 `json:"offset"`
	Size    uint64 `json:"size"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON      bool
		showTensors bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect an .mcf model container and trial its engine setup",
		Flags: append(append(commonModelFlags(), quantFlags()...),
			&cli.BoolFlag{Name: "json", Usage: "print as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "tensors", Usage: "list tensor table entries", Destination: &showTensors},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			path, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			f, err := mcf.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			rep, err := buildInspectReport(path, f, engineConfig(cmd, fileConfig))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			writeInspectReport(os.Stdout, rep, showTensors)
			return nil
		},
	}
}

// buildInspectReport fails only when the graph section cannot be read. An
// engine setup failure is reported rather than returned so a bad artifact
// can still be inspected.
func buildInspectReport(path string, f *mcf.File, cfg engine.Config) (inspectReport, error) {
	rep := inspectReport{
		Path:     path,
		Major:    f.Header.Major,
		Minor:    f.Header.Minor,
		FileSize: f.Header.FileSize,
	}
	for _, s := range f.Sections {
		rep.Sections = append(rep.Sections, inspectSection{
			Type:    mcf.SectionType(s.Type).String(),
			Version: s.Version,
			Offset:  s.Offset,
			Size:    s.Size,
		})
	}
	g, v, err := model.ReadGraph(f)
	if err != nil {
		return rep, err
	}
	rep.Graph, rep.SchemaVersion = g, v

	eng, err := engine.New(f, cfg)
	if err != nil {
		rep.SetupError = err.Error()
		return rep, nil
	}
	info := eng.Info()
	rep.Engine = &info
	return rep, nil
}

func writeInspectReport(w io.Writer, rep inspectReport, showTensors bool) {
	fmt.Fprintf(w, "file:     %s\n", rep.Path)
	fmt.Fprintf(w, "format:   MCF %d.%d (%d bytes)\n", rep.Major, rep.Minor, rep.FileSize)
	fmt.Fprintf(w, "schema:   %d\n", rep.SchemaVersion)
	fmt.Fprintf(w, "model:    %s (%s)\n", rep.Graph.Name, rep.Graph.ID)
	if rep.Graph.Description != "" {
		fmt.Fprintf(w, "about:    %s\n", rep.Graph.Description)
	}
	fmt.Fprintf(w, "input:    %s\n", describeTensor(rep.Graph.Input))
	fmt.Fprintf(w, "output:   %s\n", describeTensor(rep.Graph.Output))

	fmt.Fprintln(w, "\nsections:")
	for _, s := range rep.Sections {
		fmt.Fprintf(w, "  %-12s v%d  offset=%d size=%d\n", s.Type, s.Version, s.Offset, s.Size)
	}

	fmt.Fprintln(w, "\nlayers:")
	for i, l := range rep.Graph.Layers {
		act := l.Activation
		if act == "" {
			act = "none"
		}
		fmt.Fprintf(w, "  %2d  %-6s %-8s weights=%s", i, l.Op, act, l.Weights)
		if l.Bias != "" {
			fmt.Fprintf(w, " bias=%s", l.Bias)
		}
		fmt.Fprintln(w)
	}

	if showTensors {
		fmt.Fprintln(w, "\ntensors:")
		for _, t := range rep.Graph.Tensors {
			fmt.Fprintf(w, "  %-16s %-4s %-10s offset=%d size=%d\n", t.Name, t.DType, shapeString(t.Shape), t.Offset, t.Size)
		}
	}

	fmt.Fprintln(w)
	if rep.Engine == nil {
		fmt.Fprintf(w, "engine:   setup failed: %s\n", rep.SetupError)
		return
	}
	fmt.Fprintf(w, "engine:   %s\n", rep.Engine.State)
	fmt.Fprintf(w, "params:   %d\n", rep.Engine.Parameters)
	fmt.Fprintf(w, "arena:    %d of %d bytes\n", rep.Engine.ArenaUsed, rep.Engine.ArenaSize)
}

func describeTensor(t model.TensorSpec) string {
	s := fmt.Sprintf("%s %s %s", t.Name, t.DType, shapeString(t.Shape))
	if t.Quant != nil {
		s += fmt.Sprintf(" scale=%g zero_point=%d", t.Quant.Scale, t.Quant.ZeroPoint)
	}
	return s
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
