package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/api"
	"github.com/samcharles93/charcomplete/internal/backend"
	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls", "list-models"},
		Usage:   "List model directories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "directory with one sub-directory per model",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			if cfg.ModelsDir != "" && !cmd.IsSet("models-path") {
				modelsPath = cfg.ModelsDir
			}

			dir := modelsDirectory(modelsPath)
			if dir == "" {
				return cli.Exit("error: --models-path is required unless "+api.EnvModelsDir+" is set", 1)
			}
			models, err := api.DiscoverModels(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}

			fmt.Printf("Models in %s:\n\n", dir)
			for _, m := range models {
				printModelLine(os.Stdout, m)
			}
			fmt.Printf("\n%d model(s) found, backends available: %s\n", len(models), backend.Available())
			return nil
		},
	}
}

// printModelLine prints one model directory. Broken manifests are listed
// with the reason rather than skipped.
func printModelLine(w io.Writer, dir string) {
	name := filepath.Base(dir)
	m, err := inference.ReadManifest(dir)
	if err != nil {
		_, _ = fmt.Fprintf(w, "  %-24s (unreadable: %v)\n", name, err)
		return
	}
	kind, err := backend.Resolve(m)
	if err != nil {
		kind = "?"
	}
	size := "-"
	if st, err := os.Stat(m.Path(m.Weights)); err == nil {
		size = formatModelSize(st.Size())
	}
	chars := "?"
	if v, err := vocab.Load(m.Path(m.Vocabulary), vocab.Options{ReserveUnknown: m.ReserveUnknown}); err == nil {
		chars = fmt.Sprintf("%d", v.Size())
	}
	_, _ = fmt.Fprintf(w, "  %-24s %-5s %8s  window=%d vocab=%s\n", name, kind, size, m.WindowLength, chars)
}

func formatModelSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
