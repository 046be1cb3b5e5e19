package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/charcomplete/internal/inference"
)

// Config is ~/.config/charcomplete/config.yaml. Every field is optional and
// only fills in flags that were not given on the command line.
type Config struct {
	ModelsDir   string         `yaml:"models_dir"`
	Model       string         `yaml:"model"`
	Backend     string         `yaml:"backend"`
	ONNXLibrary string         `yaml:"onnx_library"`
	StepTimeout *time.Duration `yaml:"step_timeout"`

	// Generation defaults
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	Steps       *int64   `yaml:"steps"`
	Seed        *int64   `yaml:"seed"`
	Sanitize    *bool    `yaml:"sanitize"`

	// Interactive surfaces
	Lookahead *int64 `yaml:"lookahead"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxSteps      *int64 `yaml:"max_steps"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "charcomplete", "config.yaml")
}

// LoadConfig reads the config file. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig fills the shared model flags from the config file.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.ONNXLibrary != "" && !c.IsSet("onnx-library") {
		onnxLibrary = cfg.ONNXLibrary
	}
	if cfg.StepTimeout != nil && !c.IsSet("step-timeout") {
		stepTimeout = *cfg.StepTimeout
	}
}

// requestOptions collects the generation flags that were set on the command
// line or in the config. Anything else falls through to the model manifest.
func requestOptions(c *cli.Command, cfg Config, text string) inference.RequestOptions {
	opts := inference.RequestOptions{Text: text}

	if c.IsSet("steps") {
		n := int(steps)
		opts.Steps = &n
	} else if cfg.Steps != nil {
		n := int(*cfg.Steps)
		opts.Steps = &n
	}

	if c.IsSet("temp") {
		t := temperature
		opts.Temperature = &t
	} else if cfg.Temperature != nil {
		t := *cfg.Temperature
		opts.Temperature = &t
	}

	if c.IsSet("top-k") {
		k := int(topK)
		opts.TopK = &k
	} else if cfg.TopK != nil {
		k := int(*cfg.TopK)
		opts.TopK = &k
	}

	if c.IsSet("seed") {
		s := seed
		opts.Seed = &s
	} else if cfg.Seed != nil {
		s := *cfg.Seed
		opts.Seed = &s
	}

	if c.IsSet("greedy") {
		g := greedy
		opts.Greedy = &g
	}

	if c.IsSet("sanitize") {
		s := sanitize
		opts.Sanitize = &s
	} else if cfg.Sanitize != nil {
		s := *cfg.Sanitize
		opts.Sanitize = &s
	}
	return opts
}
