package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charcomplete/internal/burst"
	"github.com/samcharles93/charcomplete/internal/inference"
	"github.com/samcharles93/charcomplete/internal/logger"
	"github.com/samcharles93/charcomplete/internal/vocab"
	"github.com/samcharles93/charcomplete/internal/window"
)

const (
	tuiPollInterval = 100 * time.Millisecond
	tempStep        = 0.05
	minTemp         = 0.05
	maxTemp         = 2.0
)

func tuiCmd() *cli.Command {
	var (
		lookahead  int64
		burstSteps int64
		logFile    string
	)

	return &cli.Command{
		Name:  "tui",
		Usage: "Type with live character predictions",
		Flags: append(append(commonModelFlags(), generationFlags()...),
			&cli.Int64Flag{
				Name:        "lookahead",
				Usage:       "predicted characters kept ahead of the caret",
				Value:       DefaultLookahead,
				Destination: &lookahead,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "characters generated per poll",
				Value:       1,
				Destination: &burstSteps,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write logs here while the terminal is in use",
				Destination: &logFile,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, cfg)
			if cfg.Lookahead != nil && !cmd.IsSet("lookahead") {
				lookahead = *cfg.Lookahead
			}
			if lookahead < 1 || burstSteps < 1 {
				return cli.Exit("error: --lookahead and --burst must be positive", 1)
			}

			// the terminal belongs to bubbletea from here on
			log := logger.Discard()
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: open log file: %v", err), 1)
				}
				defer func() { _ = f.Close() }()
				log = logger.Setup(f, "text", logLevel, debug)
			}

			loaded, err := loadModel(logger.FromContext(ctx))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = loaded.Engine.Close() }()

			base := inference.ResolveRequest(requestOptions(cmd, cfg, ""), loaded.GenerationDefaults)
			base.Steps = int(burstSteps)
			if base.Temperature <= 0 {
				base.Temperature = minTemp
			}
			m := newTUIModel(ctx, tuiConfig{
				Title:     loaded.Manifest.Name,
				Engine:    loaded.Engine,
				Base:      base,
				Lookahead: int(lookahead),
			}, log)

			p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

type tuiConfig struct {
	Title     string
	Engine    inference.Engine
	Base      inference.Request
	Lookahead int
}

// atomicFloat is read by burst goroutines while the UI changes it.
type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

type tickMsg time.Time

type burstMsg burst.Completion

type tuiKeys struct {
	Accept   key.Binding
	TempUp   key.Binding
	TempDown key.Binding
	Newline  key.Binding
	Delete   key.Binding
	Clear    key.Binding
	Quit     key.Binding
}

func (k tuiKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Accept, k.TempUp, k.TempDown, k.Clear, k.Quit}
}

func (k tuiKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Accept, k.Newline, k.Delete, k.Clear},
		{k.TempUp, k.TempDown, k.Quit},
	}
}

type tuiStyles struct {
	title  lipgloss.Style
	text   lipgloss.Style
	ghost  lipgloss.Style
	caret  lipgloss.Style
	status lipgloss.Style
	warn   lipgloss.Style
}

func defaultTUIStyles() tuiStyles {
	brand := lipgloss.AdaptiveColor{Light: "26", Dark: "81"}
	subtle := lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
	return tuiStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(brand),
		text:   lipgloss.NewStyle(),
		ghost:  lipgloss.NewStyle().Foreground(subtle),
		caret:  lipgloss.NewStyle().Reverse(true),
		status: lipgloss.NewStyle().Foreground(subtle),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

// tuiModel keeps the typed text and the predicted characters after the
// caret. text+pred is always the string the last accepted burst continued,
// so typing along with the prediction never invalidates a running burst.
type tuiModel struct {
	ctx       context.Context
	title     string
	sched     *burst.Scheduler
	temp      *atomicFloat
	lookahead int
	log       logger.Logger

	text []rune
	pred []rune
	// blocked stops polling after the model refused the text, until it changes.
	blocked bool
	status  string
	last    time.Duration

	width  int
	keys   tuiKeys
	help   help.Model
	spin   spinner.Model
	styles tuiStyles
}

func newTUIModel(ctx context.Context, cfg tuiConfig, log logger.Logger) *tuiModel {
	if log == nil {
		log = logger.Discard()
	}
	temp := &atomicFloat{}
	temp.Store(cfg.Base.Temperature)

	base := cfg.Base
	engine := cfg.Engine
	fn := func(ctx context.Context, input string) (string, error) {
		req := base
		req.Text = input
		req.Temperature = temp.Load()
		res, err := engine.Complete(ctx, &req)
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	return &tuiModel{
		ctx:       ctx,
		title:     cfg.Title,
		sched:     burst.New(fn, log),
		temp:      temp,
		lookahead: cfg.Lookahead,
		log:       log,
		keys: tuiKeys{
			Accept:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "accept word")),
			TempUp:   key.NewBinding(key.WithKeys("ctrl+up"), key.WithHelp("ctrl+↑", "hotter")),
			TempDown: key.NewBinding(key.WithKeys("ctrl+down"), key.WithHelp("ctrl+↓", "colder")),
			Newline:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "newline")),
			Delete:   key.NewBinding(key.WithKeys("backspace"), key.WithHelp("backspace", "delete")),
			Clear:    key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "clear")),
			Quit:     key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
		},
		help:   help.New(),
		spin:   sp,
		styles: defaultTUIStyles(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(tuiPollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.spin.Tick)
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tickMsg:
		return m, tea.Batch(tick(), m.poll())
	case burstMsg:
		m.apply(burst.Completion(msg))
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// poll starts a burst when the lookahead is short and none is running.
func (m *tuiModel) poll() tea.Cmd {
	if m.blocked || len(m.pred) >= m.lookahead || m.sched.InFlight() {
		return nil
	}
	m.sched.Update(m.full())
	job, ok := m.sched.Next()
	if !ok {
		return nil
	}
	sched, ctx := m.sched, m.ctx
	return func() tea.Msg {
		return burstMsg(sched.Run(ctx, job))
	}
}

func (m *tuiModel) apply(c burst.Completion) {
	if c.Stale || c.Input != m.full() {
		m.log.Debug("dropping stale burst", "token", c.Token)
		return
	}
	if c.Err != nil {
		if errors.Is(c.Err, context.Canceled) {
			return
		}
		if errors.Is(c.Err, vocab.ErrUnknownCharacter) {
			m.blocked = true
			m.status = "cannot predict here"
			return
		}
		m.status = c.Err.Error()
		return
	}
	m.pred = append(m.pred, []rune(c.Output)...)
	m.last = c.Duration
	m.status = ""
}

func (m *tuiModel) full() string {
	return string(m.text) + string(m.pred)
}

// edited is called after any change that is not typing along the prediction.
func (m *tuiModel) edited() {
	m.pred = nil
	m.blocked = false
	m.status = ""
	m.sched.Update(string(m.text))
}

func (m *tuiModel) typeRune(r rune) {
	m.text = append(m.text, r)
	if len(m.pred) > 0 && m.pred[0] == r {
		m.pred = m.pred[1:]
		return
	}
	m.edited()
}

func (m *tuiModel) acceptWord() {
	if len(m.pred) == 0 {
		return
	}
	full := append(append([]rune{}, m.text...), m.pred...)
	end := window.NextWordEnd(full, len(m.text))
	m.text = full[:end]
	m.pred = full[end:]
}

func (m *tuiModel) setTemperature(t float64) {
	t = math.Round(t*100) / 100
	t = min(max(t, minTemp), maxTemp)
	if t == m.temp.Load() {
		return
	}
	m.temp.Store(t)
	m.edited()
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.sched.Update("")
		return m, tea.Quit
	case key.Matches(msg, m.keys.Accept):
		m.acceptWord()
	case key.Matches(msg, m.keys.TempUp):
		m.setTemperature(m.temp.Load() + tempStep)
	case key.Matches(msg, m.keys.TempDown):
		m.setTemperature(m.temp.Load() - tempStep)
	case key.Matches(msg, m.keys.Newline):
		m.typeRune('\n')
	case key.Matches(msg, m.keys.Delete):
		if len(m.text) > 0 {
			m.text = m.text[:len(m.text)-1]
		}
		m.edited()
	case key.Matches(msg, m.keys.Clear):
		m.text = m.text[:0]
		m.edited()
	case msg.Type == tea.KeySpace:
		m.typeRune(' ')
	case msg.Type == tea.KeyRunes:
		for _, r := range msg.Runes {
			m.typeRune(r)
		}
	}
	return m, nil
}

func (m *tuiModel) View() string {
	var b strings.Builder

	state := " "
	if m.sched.InFlight() {
		state = m.spin.View()
	}
	b.WriteString(m.styles.title.Render("charcomplete"))
	b.WriteString(m.styles.status.Render(fmt.Sprintf("  %s  temperature %.2f  %s", m.title, m.temp.Load(), state)))
	b.WriteString("\n\n")

	body := m.styles.text.Render(string(m.text))
	if len(m.pred) > 0 {
		body += m.styles.caret.Render(printable(m.pred[:1]))
		body += m.styles.ghost.Render(string(m.pred[1:]))
	} else {
		body += m.styles.caret.Render(" ")
	}
	if m.width > 0 {
		body = lipgloss.NewStyle().Width(m.width).Render(body)
	}
	b.WriteString(body)
	b.WriteString("\n\n")

	switch {
	case m.status != "":
		b.WriteString(m.styles.warn.Render(m.status))
	case m.last > 0:
		b.WriteString(m.styles.status.Render(fmt.Sprintf("last burst %s", m.last.Round(time.Microsecond))))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
