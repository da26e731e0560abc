package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-worklet/processor"
	"github.com/wippyai/wasm-worklet/render"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	rangeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	hotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	barWidth   = 40
	meterWidth = 30
	progressQ  = 64
)

type modelState int

const (
	stateLoading modelState = iota
	stateEdit
	stateRendering
	stateDone
)

type loadedMsg struct {
	sess *session
	err  error
}

type progressMsg struct {
	progress render.Progress
}

type doneMsg struct {
	result render.Result
	err    error
}

type interactiveModel struct {
	ctx      context.Context
	opts     options
	sess     *session
	params   processor.ParamSet
	inputs   []textinput.Model
	focusIdx int
	state    modelState
	updates  chan tea.Msg
	progress render.Progress
	result   render.Result
	renders  int
	err      error

	stopRender context.CancelFunc
	renderDone chan struct{}
}

func newInteractiveModel(ctx context.Context, opts options) *interactiveModel {
	return &interactiveModel{ctx: ctx, opts: opts, state: stateLoading}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	sess, err := newSession(m.ctx, m.opts, zap.NewNop())
	return loadedMsg{sess: sess, err: err}
}

func (m *interactiveModel) prepareInputs() {
	m.inputs = make([]textinput.Model, len(m.params))
	for i, p := range m.params {
		ti := textinput.New()
		ti.Prompt = p.Name + ": "
		ti.Placeholder = strconv.FormatFloat(float64(p.Default), 'g', -1, 32)
		if v, ok := m.opts.values[p.Name]; ok {
			ti.SetValue(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		ti.Width = 16
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) values() (map[string]float32, error) {
	out := make(map[string]float32, len(m.inputs))
	for i, in := range m.inputs {
		s := strings.TrimSpace(in.Value())
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.params[i].Name, err)
		}
		out[m.params[i].Name] = float32(v)
	}
	return out, nil
}

func (m *interactiveModel) startRender(values map[string]float32) tea.Cmd {
	m.updates = make(chan tea.Msg, progressQ)
	m.progress = render.Progress{}
	m.state = stateRendering
	m.err = nil
	updates := m.updates
	sess := m.sess
	ctx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})
	m.stopRender, m.renderDone = cancel, done

	go func() {
		defer close(done)
		res, err := sess.Render(ctx, values, func(p render.Progress) {
			p.Peaks = append([]float32(nil), p.Peaks...)
			select {
			case updates <- progressMsg{progress: p}:
			default:
			}
		})
		updates <- doneMsg{result: res, err: err}
	}()
	return waitFor(updates)
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.state != stateEdit {
				return m, m.quit()
			}

		case "esc":
			if m.state == stateDone {
				m.state = stateEdit
				return m, nil
			}
			if m.state != stateRendering {
				return m, m.quit()
			}

		case "tab", "down":
			if m.state == stateEdit && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "shift+tab", "up":
			if m.state == stateEdit && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + len(m.inputs) - 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "enter":
			switch m.state {
			case stateEdit:
				values, err := m.values()
				if err != nil {
					m.err = err
					return m, nil
				}
				return m, m.startRender(values)
			case stateDone:
				m.state = stateEdit
				return m, nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		m.params = msg.sess.Params()
		m.prepareInputs()
		m.state = stateEdit

	case progressMsg:
		m.progress = msg.progress
		return m, waitFor(m.updates)

	case doneMsg:
		m.result = msg.result
		m.err = msg.err
		m.renders++
		m.state = stateDone
		m.stopRender()
		m.stopRender = nil
		return m, nil
	}

	if m.state == stateEdit {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) quit() tea.Cmd {
	m.stop()
	return tea.Quit
}

// stop aborts a running render and waits for it before releasing the
// session.
func (m *interactiveModel) stop() {
	if m.stopRender != nil {
		m.stopRender()
		<-m.renderDone
		m.stopRender = nil
	}
	if m.sess != nil {
		m.sess.Close(context.Background())
		m.sess = nil
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateLoading {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.state == stateLoading {
		return "Loading engine..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Worklet Render"))
	b.WriteString(" ")
	b.WriteString(m.opts.in)
	b.WriteString(" → ")
	b.WriteString(m.opts.out)
	b.WriteString("\n\n")

	switch m.state {
	case stateEdit:
		if len(m.inputs) == 0 {
			b.WriteString("No parameters.\n")
		}
		for i, in := range m.inputs {
			p := m.params[i]
			b.WriteString(in.View())
			b.WriteString(" ")
			b.WriteString(rangeStyle.Render(fmt.Sprintf("[%g, %g] %s", p.Min, p.Max, p.Rate)))
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter render • esc quit"))

	case stateRendering:
		b.WriteString(labelStyle.Render("Rendering"))
		b.WriteString("\n\n")
		b.WriteString(progressBar(m.progress.Frames, m.progress.Total))
		b.WriteString("\n\n")
		b.WriteString(meters(m.progress.Peaks))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("ctrl+c abort"))

	case stateDone:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		} else {
			st := m.sess.proc.Stats()
			b.WriteString(resultStyle.Render(fmt.Sprintf("Rendered %d frames in %d blocks (%d produced, %d errors)",
				m.result.Frames, m.result.Blocks, m.result.Produced, st.Errors)))
			b.WriteString("\n\n")
			b.WriteString(meters(m.result.Peaks))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("enter edit • q quit"))
	}
	return b.String()
}

func progressBar(done, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%d frames", done)
	}
	frac := min(float64(done)/float64(total), 1)
	filled := int(frac * barWidth)
	return barStyle.Render(strings.Repeat("█", filled)) +
		strings.Repeat("░", barWidth-filled) +
		fmt.Sprintf(" %3.0f%%", frac*100)
}

func meters(peaks []float32) string {
	var b strings.Builder
	for c, p := range peaks {
		db := math.Inf(-1)
		if p > 0 {
			db = 20 * math.Log10(float64(p))
		}
		// -60 dBFS to 0 dBFS across the meter
		filled := int(min(max((db+60)/60, 0), 1) * meterWidth)
		style := meterStyle
		if p >= 1 {
			style = hotStyle
		}
		fmt.Fprintf(&b, "ch%-2d %s%s %6.1f dB\n", c,
			style.Render(strings.Repeat("▮", filled)),
			strings.Repeat("·", meterWidth-filled), db)
	}
	return b.String()
}

func runInteractive(ctx context.Context, opts options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	m := newInteractiveModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.stop()
	return err
}
