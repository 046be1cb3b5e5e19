package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("kept", "model", "shakespeare")
	out := buf.String()
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"model":"shakespeare"`) {
		t.Fatalf("unexpected JSON output: %s", out)
	}
}

func TestPrettyFormatsAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Debug("burst complete", "steps", 20, "window", "to be", "elapsed", 1500*time.Microsecond)

	out := buf.String()
	for _, want := range []string{"burst complete", "steps=20", `window="to be"`, "elapsed=1.5ms", "DEBUG"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("record must end with a newline")
	}
}

func TestPrettyWithGroupAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).With("model", "tiny").WithGroup("req")
	log.Info("completion", "steps", 3)

	out := buf.String()
	if !strings.Contains(out, "model=tiny") {
		t.Fatalf("expected inherited attr, got: %s", out)
	}
	if !strings.Contains(out, "req.steps=3") {
		t.Fatalf("expected grouped key, got: %s", out)
	}
}

func TestPrettyLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelError)
	log.Warn("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got: %s", buf.String())
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		level  string
		debug  bool
		want   string
		silent bool
	}{
		{name: "json", format: "json", level: "info", want: `"msg":"hello"`},
		{name: "text", format: "text", level: "info", want: "msg=hello"},
		{name: "pretty default", format: "", level: "info", want: "hello"},
		{name: "level filters", format: "json", level: "error", silent: true},
		{name: "debug overrides level", format: "json", level: "error", debug: true, want: `"msg":"hello"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := Setup(&buf, tc.format, tc.level, tc.debug)
			log.Info("hello")
			if tc.silent {
				if buf.Len() != 0 {
					t.Fatalf("expected no output, got %s", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("logger not carried by context")
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("FromContext must fall back to a default logger")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("nothing")
	log.With("k", "v").WithGroup("g").Info("nothing")
}
