package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
)

// DefaultLookahead is how many characters the interactive surfaces ask for
// when building a suggestion.
const DefaultLookahead = 40

var stdinReader = bufio.NewReader(os.Stdin)

func readPlainLine() (string, error) {
	s, err := stdinReader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || s == "") {
		return "", err
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// completeFunc runs one completion of text. steps < 0 keeps the resolved
// request's step count.
type completeFunc func(ctx context.Context, text string, steps int) (*inference.Result, error)

func replCmd() *cli.Command {
	var (
		prompt    string
		lookahead int64
	)

	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive line editor with Tab completion",
		Flags: append(append(commonModelFlags(), generationFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Usage:       "prompt shown before each line",
				Value:       "> ",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "lookahead",
				Usage:       "characters predicted for a Tab suggestion",
				Value:       DefaultLookahead,
				Destination: &lookahead,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, cfg)
			if cfg.Lookahead != nil && !cmd.IsSet("lookahead") {
				lookahead = *cfg.Lookahead
			}

			loaded, err := loadModel(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = loaded.Engine.Close() }()

			complete := func(ctx context.Context, text string, n int) (*inference.Result, error) {
				req := inference.ResolveRequest(requestOptions(cmd, cfg, text), loaded.GenerationDefaults)
				if n >= 0 {
					req.Steps = n
				}
				return loaded.Engine.Complete(ctx, &req)
			}

			if !stdinIsTTY() {
				return completeLines(ctx, os.Stdin, os.Stdout, complete, log)
			}
			return runRepl(ctx, prompt, int(lookahead), complete, log)
		},
	}
}

func runRepl(ctx context.Context, prompt string, lookahead int, complete completeFunc, log logger.Logger) error {
	_, _ = fmt.Fprintln(os.Stderr, "Tab suggests, Tab again accepts a word, Enter completes the line, Ctrl+D quits.")

	suggest := func(text string) string {
		res, err := complete(ctx, text, lookahead)
		if err != nil {
			if !errors.Is(err, vocab.ErrUnknownCharacter) {
				log.Warn("suggestion failed", "error", err)
			}
			return ""
		}
		return res.Text
	}

	ed := &lineEditor{}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := readInteractiveLine(ed, prompt, suggest)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		res, err := complete(ctx, line, -1)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Printf("%s%s%s%s\n", line, ansiDim, res.Text, ansiReset)
	}
}

// completeLines prints every input line followed by its completion. Lines the
// model cannot continue are echoed unchanged.
func completeLines(ctx context.Context, r io.Reader, w io.Writer, complete completeFunc, log logger.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := trimTrailingNewline(sc.Text())
		if line == "" {
			_, _ = fmt.Fprintln(w)
			continue
		}
		res, err := complete(ctx, line, -1)
		switch {
		case errors.Is(err, vocab.ErrUnknownCharacter):
			log.Warn("cannot complete line", "line", line, "error", err)
			_, _ = fmt.Fprintln(w, line)
			continue
		case err != nil:
			return cli.Exit(fmt.Sprintf("error: complete: %v", err), 1)
		}
		_, _ = fmt.Fprintln(w, res.Full(line))
	}
	return sc.Err()
}
