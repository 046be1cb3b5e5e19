package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

type vocabSummary struct {
	Model          string   `json:"model"`
	Size           int      `json:"size"`
	Width          int      `json:"width"`
	ReserveUnknown bool     `json:"reserve_unknown"`
	WindowLength   int      `json:"window_length"`
	Chars          []string `json:"chars"`
}

func vocabCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "vocab",
		Usage: "Print the vocabulary of a model",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, configFromContext(ctx))

			path, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			m, err := inference.ReadManifest(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			v, err := vocab.Load(m.Path(m.Vocabulary), vocab.Options{ReserveUnknown: m.ReserveUnknown})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			sum := summarizeVocab(m, v)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			printVocab(os.Stdout, sum)
			return nil
		},
	}
}

func summarizeVocab(m inference.Manifest, v *vocab.Vocabulary) vocabSummary {
	chars := v.Chars()
	out := vocabSummary{
		Model:          m.Name,
		Size:           v.Size(),
		Width:          v.Width(),
		ReserveUnknown: v.ReservesUnknown(),
		WindowLength:   m.WindowLength,
		Chars:          make([]string, len(chars)),
	}
	for i, c := range chars {
		out.Chars[i] = string(c)
	}
	return out
}

func printVocab(w io.Writer, s vocabSummary) {
	_, _ = fmt.Fprintf(w, "model:           %s\n", s.Model)
	_, _ = fmt.Fprintf(w, "characters:      %d\n", s.Size)
	_, _ = fmt.Fprintf(w, "row width:       %d\n", s.Width)
	_, _ = fmt.Fprintf(w, "reserve unknown: %t\n", s.ReserveUnknown)
	_, _ = fmt.Fprintf(w, "window length:   %d\n", s.WindowLength)
	_, _ = fmt.Fprintln(w)
	for i, c := range s.Chars {
		_, _ = fmt.Fprintf(w, "  %4d  %s\n", i, strconv.Quote(c))
	}
}
