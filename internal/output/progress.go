package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Aman-CERP/knowbase/internal/engine"
)

// BatchRenderer shows ingestion progress while a batch runs.
type BatchRenderer interface {
	Update(p engine.BatchProgress)
	// Stop clears the live display. The per-file report follows it.
	Stop()
}

// NewBatchRenderer returns a live progress display for batches of more
// than one file on an interactive terminal outside CI. Anything else gets
// a renderer that draws nothing and leaves reporting to Writer.Batch.
func NewBatchRenderer(ctx context.Context, w io.Writer, total int) BatchRenderer {
	if total < 2 || !IsTTY(w) || DetectCI() {
		return lineRenderer{}
	}
	f, ok := w.(*os.File)
	if !ok {
		return lineRenderer{}
	}
	return startTUIRenderer(ctx, f, total, ShouldColor(w))
}

// DetectCI reports whether a CI system is running us.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// lineRenderer is used for pipes and single files.
type lineRenderer struct{}

func (lineRenderer) Update(engine.BatchProgress) {}
func (lineRenderer) Stop()                       {}

// tuiRenderer runs a bubbletea program for the lifetime of one batch.
type tuiRenderer struct {
	program *tea.Program
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func startTUIRenderer(ctx context.Context, f *os.File, total int, color bool) *tuiRenderer {
	model := newBatchModel(total, color)
	r := &tuiRenderer{
		// No input: the batch is not interactive and Ctrl+C stays with the
		// command's signal handling.
		program: tea.NewProgram(model, tea.WithOutput(f), tea.WithInput(nil), tea.WithContext(ctx)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return r
}

func (r *tuiRenderer) Update(p engine.BatchProgress) {
	r.program.Send(batchProgressMsg(p))
}

func (r *tuiRenderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.program.Send(batchDoneMsg{})
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.program.Kill()
	}
}

type (
	batchProgressMsg engine.BatchProgress
	batchDoneMsg     struct{}
)

// batchModel is the bubbletea model behind tuiRenderer.
type batchModel struct {
	total    int
	done     int
	counts   map[engine.Outcome]int
	current  string
	finished bool
	bar      progress.Model
	spin     spinner.Model
	styles   Styles
}

func newBatchModel(total int, color bool) *batchModel {
	styles := NoColorStyles()
	barOpts := []progress.Option{progress.WithWidth(40), progress.WithoutPercentage()}
	if color {
		styles = DefaultStyles()
		barOpts = append(barOpts, progress.WithSolidFill(ColorAccent))
	} else {
		barOpts = append(barOpts, progress.WithColorProfile(termenv.Ascii))
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Success

	return &batchModel{
		total:  total,
		counts: make(map[engine.Outcome]int),
		bar:    progress.New(barOpts...),
		spin:   s,
		styles: styles,
	}
}

func (m *batchModel) Init() tea.Cmd { return m.spin.Tick }

func (m *batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(60, msg.Width-20))
	case batchProgressMsg:
		m.done = msg.Done
		m.counts[msg.Result.Status]++
		m.current = msg.Result.Source
	case batchDoneMsg:
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders nothing once finished so the live block disappears before
// the per-file report is printed.
func (m *batchModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Ingesting %d/%d files\n", m.spin.View(), m.done, m.total)

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s %3.0f%%\n", m.bar.ViewAs(pct), pct*100)

	fmt.Fprintln(&b, m.styles.Label.Render(fmt.Sprintf("%d processed, %d unchanged, %d duplicate, %d failed",
		m.counts[engine.OutcomeProcessed], m.counts[engine.OutcomeUnchanged],
		m.counts[engine.OutcomeDuplicate], m.counts[engine.OutcomeFailed])))

	if m.current != "" {
		fmt.Fprintln(&b, m.styles.Dim.Render(lipgloss.NewStyle().MaxWidth(70).Render(filepath.Base(m.current))))
	}
	return b.String()
}
