package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "charcomplete",
		Usage:   "Character-level RNN text completion",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			completeCmd(),
			replCmd(),
			tuiCmd(),
			serveCmd(),
			benchCmd(),
			modelsCmd(),
			vocabCmd(),
			inspectCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the user config and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configPath()
	cfg, cfgErr := LoadConfig(path)
	applyLoggingConfig(cmd, cfg)

	log := logger.Setup(os.Stderr, logFormat, logLevel, debug)
	if cfgErr != nil {
		log.Warn("ignoring config file", "path", path, "error", cfgErr)
	}
	ctx = logger.WithContext(ctx, log)
	return withConfig(ctx, cfg), nil
}
