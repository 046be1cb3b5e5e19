package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		showStats bool
		filter    string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the tensors of a safetensors weights file",
		ArgsUsage: "[file.safetensors]",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "read every tensor and print min, max and mean",
				Destination: &showStats,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this string",
				Destination: &filter,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, configFromContext(ctx))

			path := cmd.Args().First()
			if path == "" {
				dir, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
				}
				m, err := inference.ReadManifest(dir)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				path = m.Path(m.Weights)
			}
			if !strings.EqualFold(filepath.Ext(path), ".safetensors") {
				return cli.Exit(fmt.Sprintf("error: %s is not a safetensors file", path), 1)
			}

			f, err := safetensors.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := printTensors(os.Stdout, f, filter, showStats); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}

func printTensors(w io.Writer, f *safetensors.File, filter string, stats bool) error {
	_, _ = fmt.Fprintf(w, "file: %s\n", f.Path)
	if len(f.Metadata) > 0 {
		keys := make([]string, 0, len(f.Metadata))
		for k := range f.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		_, _ = fmt.Fprintln(w, "metadata:")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, f.Metadata[k])
		}
	}
	_, _ = fmt.Fprintln(w, "tensors:")

	var total int
	for _, name := range f.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		info, _ := f.Tensor(name)
		n, err := info.Elements()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		total += n
		_, _ = fmt.Fprintf(w, "  %-20s %-5s %-12s %d", name, info.DType, formatShape(info.Shape), n)
		if stats {
			data, _, err := f.ReadTensorF32(name)
			if err != nil {
				return err
			}
			lo, hi, mean := summarize(data)
			_, _ = fmt.Fprintf(w, "  min=%.4g max=%.4g mean=%.4g", lo, hi, mean)
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintf(w, "parameters: %d\n", total)
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func summarize(data []float32) (lo, hi, mean float64) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range data {
		f := float64(v)
		lo = min(lo, f)
		hi = max(hi, f)
		sum += f
	}
	return lo, hi, sum / float64(len(data))
}
