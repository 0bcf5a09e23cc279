// Package tui renders a live view of in-flight asset loads. It is a consumer
// of the loader's observer API: each row subscribes to one request handle and
// repaints as transitions arrive.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/assets"
)

// snapMsg carries one state transition from a handle's subscription into the
// Bubble Tea update loop.
type snapMsg struct {
	index int
	snap  assets.Snapshot
}

type row struct {
	req    assets.Request
	handle *assets.Handle
	snap   assets.Snapshot
}

// Model is the Bubble Tea model for the watch view.
type Model struct {
	rows    []*row
	updates chan snapMsg
	spinner spinner.Model
	done    bool
}

// NewModel starts loading every request and wires their subscriptions into
// the view. Updates are delivered over a buffered channel; if the channel is
// momentarily full a transition is dropped and the row catches up from the
// handle's current state on the next repaint.
func NewModel(ctx context.Context, loader *assets.Loader, reqs []assets.Request) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	m := &Model{
		updates: make(chan snapMsg, 256),
		spinner: sp,
	}

	for i, req := range reqs {
		handle := loader.Load(ctx, req)
		r := &row{req: req, handle: handle}
		m.rows = append(m.rows, r)

		index := i
		handle.Subscribe(func(snap assets.Snapshot) {
			select {
			case m.updates <- snapMsg{index: index, snap: snap}:
			default:
			}
		})
	}

	return m
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			for _, r := range m.rows {
				r.handle.Cancel()
			}
			return m, tea.Quit
		case "r":
			// Restart any exhausted rows.
			for _, r := range m.rows {
				r.handle.Retry()
			}
			return m, nil
		}

	case snapMsg:
		m.rows[msg.index].snap = msg.snap
		m.refreshDone()
		return m, m.waitForUpdate()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Catch up rows whose channel sends were dropped.
		for _, r := range m.rows {
			r.snap = r.handle.State()
		}
		m.refreshDone()
		return m, cmd
	}

	return m, nil
}

func (m *Model) refreshDone() {
	for _, r := range m.rows {
		if !r.snap.Phase.Terminal() {
			m.done = false
			return
		}
	}
	m.done = true
}

// View implements tea.Model.
func (m *Model) View() string {
	s := titleStyle.Render("jellyview watch") + "\n\n"

	for _, r := range m.rows {
		s += m.renderRow(r) + "\n"
	}

	s += "\n"
	if m.done {
		s += dimStyle.Render("all requests settled — r retry failed, q quit")
	} else {
		s += dimStyle.Render("q quit")
	}
	return s + "\n"
}

func (m *Model) renderRow(r *row) string {
	name := labelStyle.Render(fmt.Sprintf("%-14s %-24s", r.req.Role, r.req.ItemID))

	var status string
	switch r.snap.Phase {
	case assets.PhaseIdle:
		status = dimStyle.Render("waiting")
	case assets.PhaseLoading:
		status = m.spinner.View() + labelStyle.Render(fmt.Sprintf(
			" loading candidate %d (attempt %d)", r.snap.CandidateIndex+1, r.snap.RetryCount+1))
	case assets.PhaseRecoverableError:
		status = warnStyle.Render(fmt.Sprintf(
			"retrying candidate %d: %v", r.snap.CandidateIndex+1, r.snap.Err))
	case assets.PhaseSuccess:
		status = successStyle.Render(fmt.Sprintf(
			"✓ %dx%d, %d bytes (candidate %d)",
			r.snap.Width, r.snap.Height, len(r.snap.Payload), r.snap.CandidateIndex+1))
	case assets.PhaseExhausted:
		status = errorStyle.Render(fmt.Sprintf(
			"✗ %s", assets.ClassifyFailure(r.snap.Err)))
	}

	return "  " + name + " " + status
}
