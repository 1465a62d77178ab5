package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/pkolbe/ontograph-go/internal/client"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the batch status
type tickMsg time.Time

// batchUpdateMsg carries the updated batch status
type batchUpdateMsg struct {
	status *client.BatchStatus
	err    error
}

// progressModel is the bubbletea model for batch progress.
type progressModel struct {
	client   *client.Client
	batchID  string
	status   *client.BatchStatus
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(c *client.Client, batchID string) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		batchID:  batchID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		// Fetch batch status
		return m, m.fetchStatus()

	case batchUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch batch status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.status = msg.status

		// Check for terminal states
		switch {
		case m.status.Tag == "NotFound":
			m.err = fmt.Errorf("batch not found: %s", m.batchID)
			m.done = true
			return m, tea.Quit
		case m.status.Tag == "Suspended":
			m.done = true
			return m, tea.Quit
		case m.status.Tag == "Active" && m.status.State != nil && m.status.State.Pending == 0:
			m.done = true
			return m, tea.Quit
		}

		// Continue polling while the batch is active
		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.status == nil || m.status.State == nil {
		return "Loading batch status...\n"
	}

	s := m.status.State
	total := s.Processed + s.Pending + s.Failed

	// Calculate progress percentage
	var pct float64
	if total > 0 {
		pct = float64(s.Processed+s.Failed) / float64(total)
	}

	// Status line with color
	status := m.theme.statusStyle().Render("[active]")

	// Progress bar with counts
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d items", s.Processed+s.Failed, total)
	if s.Failed > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d failed)", s.Failed))
	}

	// Hint about background operation
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nBatch %s continues in background.\nUse 'ontograph status %s' to check progress.\n",
			m.batchID, m.batchID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	if m.status != nil && m.status.Tag == "Suspended" {
		cause := "unknown"
		if m.status.Cause != nil {
			cause = *m.status.Cause
		}
		var output string
		output += m.theme.errorStyle().Render("⏸ Suspended") + "\n\n"
		output += fmt.Sprintf("  Cause: %s\n", cause)
		if s := m.status.LastKnownState; s != nil {
			output += fmt.Sprintf("  Processed: %d\n", s.Processed)
			output += fmt.Sprintf("  Pending:   %d\n", s.Pending)
			if s.Failed > 0 {
				output += fmt.Sprintf("  Failed:    %d\n", s.Failed)
			}
		}
		if m.status.CanResume != nil && *m.status.CanResume {
			output += m.theme.hintStyle().Render(fmt.Sprintf("\nUse 'ontograph resume %s' to continue.\n", m.batchID))
		}
		return output
	}

	// Success with counts
	if m.status != nil && m.status.State != nil {
		s := m.status.State
		var output string
		output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  Processed: %d\n", s.Processed)
		if s.Failed > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("  Failed:    %d\n", s.Failed))
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchStatus fetches the current batch status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := m.client.GetBatchStatus(ctx, m.batchID)
		return batchUpdateMsg{status: status, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunBatchProgress runs the interactive progress UI for a batch.
// Returns nil on completion or Ctrl+C (background), error on failure.
func RunBatchProgress(c *client.Client, batchID string) error {
	model := newProgressModel(c, batchID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	// Check final state
	if m, ok := finalModel.(progressModel); ok {
		// If user quit with Ctrl+C, batch continues in background - not an error
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
