package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/api"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/webui"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxSteps    int64
		noUI        bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the completion API",
		Flags: append(commonModelFlags(),
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
			&cli.Int64Flag{
				Name:        "max-steps",
				Usage:       "largest steps value a request may ask for",
				Value:       api.DefaultMaxSteps,
				Destination: &maxSteps,
			},
			&cli.BoolFlag{
				Name:        "no-ui",
				Usage:       "do not serve the browser page at /",
				Destination: &noUI,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, cfg)
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}
			if cfg.MaxSteps != nil && !cmd.IsSet("max-steps") {
				maxSteps = *cfg.MaxSteps
			}

			loader, err := newLoader(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			provider := api.NewCachedEngineProvider(api.EngineProviderConfig{
				DefaultModelPath: modelPath,
				ModelsPath:       modelsDirectory(modelsPath),
				Loader:           loader,
			})
			defer func() {
				if err := provider.Close(); err != nil {
					log.Warn("closing models", "error", err)
				}
			}()
			// a broken default model should stop startup, not the first request
			if modelPath != "" {
				if err := provider.Warm(""); err != nil {
					return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
				}
			}

			service := api.NewCompletionService(provider, log)
			service.SetMaxSteps(int(maxSteps))
			server := api.NewServer(service)
			if !noUI {
				server.WithIndex(webui.Index())
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
