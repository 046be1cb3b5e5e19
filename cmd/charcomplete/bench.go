package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		text       string
		benchSteps int64
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"p"},
			Usage:       "text to continue",
			Value:       "the quick brown fox jumps over the lazy dog",
			Destination: &text,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "characters to generate per run",
			Value:       200,
			Destination: &benchSteps,
		},
	)

	return &cli.Command{
		Name:    "bench",
		Aliases: []string{"benchmark"},
		Usage:   "Measure generation speed",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, configFromContext(ctx))
			if benchRuns < 1 {
				return cli.Exit("error: --runs must be at least 1", 1)
			}

			loadStart := time.Now()
			loaded, err := loadModel(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = loaded.Engine.Close() }()
			loadDuration := time.Since(loadStart)

			sig := loaded.Engine.Signature()
			fmt.Println("=== charcomplete benchmark ===")
			fmt.Printf("Model:      %s (%s)\n", loaded.Manifest.Name, loaded.Manifest.Dir)
			fmt.Printf("Window:     %d x %d\n", sig.WindowLength, sig.Width)
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Load:       %s\n", loadDuration.Round(time.Millisecond))
			fmt.Printf("Steps:      %d chars\n", benchSteps)
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			// fixed seed so every run samples the same path
			seed := int64(42)
			n := int(benchSteps)
			sanitized := true
			req := inference.ResolveRequest(inference.RequestOptions{
				Text:     text,
				Steps:    &n,
				Seed:     &seed,
				Sanitize: &sanitized,
			}, loaded.GenerationDefaults)

			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, err := loaded.Engine.Complete(ctx, &req); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			results := make([]inference.Stats, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Debug("benchmark run", "run", i+1)
				res, err := loaded.Engine.Complete(ctx, &req)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				results = append(results, res.Stats)
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %10s %12s %8s\n", "Run", "cps", "Duration", "Chars")
			var sumCPS float64
			var sumDur time.Duration
			for i, r := range results {
				fmt.Printf("%-6d %10.1f %12s %8d\n", i+1, r.CPS, r.Duration.Round(time.Microsecond), r.Steps)
				sumCPS += r.CPS
				sumDur += r.Duration
			}
			cnt := float64(len(results))
			fmt.Printf("\n%-6s %10.1f %12s\n", "Avg", sumCPS/cnt, (sumDur / time.Duration(len(results))).Round(time.Microsecond))
			if n > 0 {
				fmt.Printf("Per step: %s\n", (sumDur / time.Duration(len(results)*n)).Round(time.Microsecond))
			}

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
