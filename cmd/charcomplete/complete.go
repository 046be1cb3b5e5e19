package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
)

func completeCmd() *cli.Command {
	var (
		text  string
		full  bool
		stats bool
	)

	return &cli.Command{
		Name:  "complete",
		Usage: "Continue a piece of text",
		Flags: append(append(commonModelFlags(), generationFlags()...),
			&cli.StringFlag{
				Name:        "text",
				Aliases:     []string{"p"},
				Usage:       "text to continue (read from stdin when absent)",
				Destination: &text,
			},
			&cli.BoolFlag{
				Name:        "full",
				Usage:       "print the input followed by the completion",
				Destination: &full,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "print generation stats to stderr",
				Destination: &stats,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, cfg)

			if !cmd.IsSet("text") {
				if stdinIsTTY() {
					return cli.Exit("error: --text is required when stdin is a terminal", 1)
				}
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read stdin: %v", err), 1)
				}
				text = strings.TrimRight(string(raw), "\r\n")
			}

			loaded, err := loadModel(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = loaded.Engine.Close() }()

			req := inference.ResolveRequest(requestOptions(cmd, cfg, text), loaded.GenerationDefaults)
			res, err := loaded.Engine.Complete(ctx, &req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: complete: %v", err), 1)
			}

			if full {
				fmt.Println(res.Full(text))
			} else {
				fmt.Println(res.Text)
			}
			if stats {
				_, _ = fmt.Fprintf(os.Stderr, "steps=%d duration=%s cps=%.1f\n", res.Stats.Steps, res.Stats.Duration, res.Stats.CPS)
			}
			return nil
		},
	}
}
