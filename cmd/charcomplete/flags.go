package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

var (
	modelPath   string
	modelsPath  string
	backendName string
	onnxLibrary string
	stepTimeout time.Duration
	logLevel    string
	logFormat   string
	debug       bool
)

// Generation flags. They only override the model defaults when set on the
// command line or in the config file.
var (
	steps       int64
	temperature float64
	topK        int64
	seed        int64
	greedy      bool
	sanitize    bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model directory (holding model.yaml) or manifest path",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory with one sub-directory per model",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "override the manifest backend (auto, rnn, onnx)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "path to the onnxruntime shared library",
			Sources:     cli.EnvVars("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
			Destination: &onnxLibrary,
		},
		&cli.DurationFlag{
			Name:        "step-timeout",
			Usage:       "bound on a single model call (0 disables)",
			Destination: &stepTimeout,
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "characters to generate",
			Value:       20,
			Destination: &steps,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 is greedy)",
			Value:       1.0,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "topk"},
			Usage:       "sample among the k most likely characters (0 disables)",
			Destination: &topK,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (-1 seeds from the clock)",
			Value:       -1,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "greedy",
			Usage:       "always pick the most likely character",
			Destination: &greedy,
		},
		&cli.BoolFlag{
			Name:        "sanitize",
			Usage:       "map characters outside the vocabulary instead of failing",
			Destination: &sanitize,
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
