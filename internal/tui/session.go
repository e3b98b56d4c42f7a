// Package tui renders a live council session in the terminal using the
// Elm architecture: the SessionView model holds all state, Update folds
// coordinator events into it, and View renders the deliberation feed.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/panshi-quant/tradecouncil/internal/coordination"
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	opinionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	resolvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	feedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	decisionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 2)
)

type sessionEventMsg struct {
	event coordination.Event
}

type sessionDoneMsg struct {
	session *coordination.Session
	err     error
}

type eventsClosedMsg struct{}

type feedLine struct {
	text  string
	style lipgloss.Style
}

// SessionView drives one council session. The run closure executes the
// session; progress arrives on the events channel, which the caller must
// close once run returns.
type SessionView struct {
	title  string
	events <-chan coordination.Event
	run    func() (*coordination.Session, error)

	spin    spinner.Model
	feed    []feedLine
	session *coordination.Session
	err     error
	done    bool
	width   int
}

// NewSessionView builds the model for a single session run.
func NewSessionView(title string, events <-chan coordination.Event, run func() (*coordination.Session, error)) *SessionView {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return &SessionView{
		title:  strings.TrimSpace(title),
		events: events,
		run:    run,
		spin:   sp,
	}
}

// Init starts the session in the background and begins draining events.
func (v *SessionView) Init() tea.Cmd {
	return tea.Batch(v.spin.Tick, v.startSession(), v.nextEvent())
}

func (v *SessionView) startSession() tea.Cmd {
	return func() tea.Msg {
		session, err := v.run()
		return sessionDoneMsg{session: session, err: err}
	}
}

func (v *SessionView) nextEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-v.events
		if !ok {
			return eventsClosedMsg{}
		}
		return sessionEventMsg{event: event}
	}
}

// Update folds one message into the model.
func (v *SessionView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		v.width = msg.Width
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return v, tea.Quit
		case "q", "esc", "enter":
			if v.done {
				return v, tea.Quit
			}
		}
		return v, nil

	case spinner.TickMsg:
		if v.done {
			return v, nil
		}
		var cmd tea.Cmd
		v.spin, cmd = v.spin.Update(msg)
		return v, cmd

	case sessionEventMsg:
		v.feed = append(v.feed, renderEvent(msg.event))
		return v, v.nextEvent()

	case eventsClosedMsg:
		return v, nil

	case sessionDoneMsg:
		v.done = true
		v.session = msg.session
		v.err = msg.err
		return v, nil
	}
	return v, nil
}

// renderEvent turns a coordinator event into one feed line.
func renderEvent(event coordination.Event) feedLine {
	switch event.Kind {
	case coordination.EventPanelSelected:
		return feedLine{text: "⬡ panel seated, gathering opinions", style: feedStyle}
	case coordination.EventOpinion:
		if event.Opinion != nil {
			return feedLine{
				text:  fmt.Sprintf("✓ %s · %s (%.2f)", event.Role, event.Opinion.Position, event.Opinion.Confidence),
				style: opinionStyle,
			}
		}
		return feedLine{text: fmt.Sprintf("✓ %s responded", event.Role), style: opinionStyle}
	case coordination.EventAgentFailed:
		return feedLine{text: fmt.Sprintf("✗ %s failed: %v", event.Role, event.Err), style: failedStyle}
	case coordination.EventConsensus:
		if event.Result != nil {
			return feedLine{
				text:  fmt.Sprintf("consensus %.2f via %s", event.Result.Score, event.Result.Method),
				style: feedStyle,
			}
		}
		return feedLine{text: "consensus reached", style: feedStyle}
	case coordination.EventResolved:
		if event.Result != nil {
			return feedLine{
				text:  fmt.Sprintf("⚖ low consensus, resolved by %s", event.Result.ResolvedBy),
				style: resolvedStyle,
			}
		}
		return feedLine{text: "⚖ conflict resolved", style: resolvedStyle}
	}
	return feedLine{text: string(event.Kind), style: dimStyle}
}

// View renders the deliberation feed and, once finished, the decision panel.
func (v *SessionView) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("⬡ TRADE COUNCIL"))
	if v.title != "" {
		sb.WriteString(dimStyle.Render("  " + v.title))
	}
	sb.WriteString("\n\n")

	for _, line := range v.feed {
		sb.WriteString("  " + line.style.Render(line.text) + "\n")
	}

	switch {
	case !v.done:
		sb.WriteString("\n  " + v.spin.View() + dimStyle.Render("deliberating...") + "\n")
	case v.err != nil:
		sb.WriteString("\n  " + failedStyle.Render(fmt.Sprintf("session failed: %v", v.err)) + "\n")
	case v.session != nil:
		sb.WriteString("\n" + decisionStyle.Render(decisionSummary(v.session)) + "\n")
	}

	if v.done {
		sb.WriteString("\n" + dimStyle.Render("  press q to exit") + "\n")
	}
	return sb.String()
}

func decisionSummary(session *coordination.Session) string {
	result := session.Result
	var sb strings.Builder
	sb.WriteString("DECISION\n")
	sb.WriteString(result.Decision + "\n\n")
	fmt.Fprintf(&sb, "score %.2f · confidence %.2f · %s", result.Score, result.Confidence, result.Method)
	if result.ResolvedBy != "" {
		fmt.Fprintf(&sb, " · resolved by %s", result.ResolvedBy)
	}
	if len(session.Failures) > 0 {
		fmt.Fprintf(&sb, "\n%d agent(s) did not respond", len(session.Failures))
	}
	return sb.String()
}

// Run launches the session view as a full-screen terminal program.
func Run(view *SessionView) error {
	p := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: run session view: %w", err)
	}
	return nil
}
