// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/protocol"
)

// Config selects what a Model shows.
type Config struct {
	Store    *aggregate.Store
	Kind     protocol.StreamKind
	EntityID string

	// Phase, if set, reports the subscription phase shown in the
	// header. It is polled on every refresh.
	Phase func() string
}

// storeEventMsg delivers a store change to Update.
type storeEventMsg struct {
	event aggregate.Event
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	config   Config
	theme    Theme
	keys     KeyMap
	renderer renderer
	events   <-chan aggregate.Event

	viewport viewport.Model
	width    int
	height   int
	ready    bool

	// following keeps the viewport pinned to the bottom as content
	// grows. Scrolling up clears it; End sets it again.
	following bool

	header string
	body   string

	// refreshes counts re-renders, for tests.
	refreshes int
}

// NewModel subscribes to config.Store and returns a Model showing the
// configured entity.
func NewModel(config Config) Model {
	model := Model{
		config:    config,
		theme:     DefaultTheme,
		keys:      DefaultKeyMap,
		renderer:  renderer{theme: DefaultTheme},
		events:    config.Store.Subscribe(),
		following: true,
	}
	model.refresh()
	return model
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return listenForStoreEvent(model.events)
}

// listenForStoreEvent blocks until the store reports a change.
func listenForStoreEvent(channel <-chan aggregate.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-channel
		if !ok {
			return nil
		}
		return storeEventMsg{event: event}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit
		case key.Matches(message, model.keys.Up):
			model.viewport.ScrollUp(1)
		case key.Matches(message, model.keys.Down):
			model.viewport.ScrollDown(1)
		case key.Matches(message, model.keys.PageUp):
			model.viewport.PageUp()
		case key.Matches(message, model.keys.PageDown):
			model.viewport.PageDown()
		case key.Matches(message, model.keys.Home):
			model.viewport.GotoTop()
		case key.Matches(message, model.keys.End):
			model.viewport.GotoBottom()
		}
		model.following = model.viewport.AtBottom()

	case tea.MouseMsg:
		var cmd tea.Cmd
		model.viewport, cmd = model.viewport.Update(message)
		model.following = model.viewport.AtBottom()
		return model, cmd

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.resize()
		model.refresh()

	case storeEventMsg:
		event := message.event
		if event.Kind == model.config.Kind && event.EntityID == model.config.EntityID {
			model.refresh()
		}
		return model, listenForStoreEvent(model.events)
	}
	return model, nil
}

// resize fits the viewport between the header and the help line.
func (model *Model) resize() {
	model.viewport.Width = model.width
	model.viewport.Height = max(model.height-3, 1)
}

// refresh re-reads the aggregate and re-renders the header and body.
func (model *Model) refresh() {
	model.refreshes++

	var status, executionID string
	var fetchStatus aggregate.FetchStatus
	switch model.config.Kind {
	case protocol.Script:
		execution := model.config.Store.Script(model.config.EntityID)
		status, executionID, fetchStatus = string(execution.Status), execution.ExecutionID, execution.FetchStatus
		model.body = model.renderer.script(execution)
	case protocol.LoadTest:
		execution := model.config.Store.LoadTest(model.config.EntityID)
		status, executionID, fetchStatus = string(execution.Status), execution.ExecutionID, execution.FetchStatus
		model.body = model.renderer.loadTest(execution)
	}

	if executionID == "" {
		executionID = "-"
	}
	parts := []string{
		lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).
			Render(fmt.Sprintf("%s %s", model.config.Kind, model.config.EntityID)),
		model.renderer.faint("execution " + executionID),
		model.theme.badge(status),
	}
	if fetchStatus == aggregate.FetchPending {
		parts = append(parts, model.renderer.faint("loading"))
	} else if fetchStatus == aggregate.FetchError {
		parts = append(parts, lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render("snapshot failed"))
	}
	if model.config.Phase != nil {
		parts = append(parts, model.renderer.faint("["+model.config.Phase()+"]"))
	}
	model.header = strings.Join(parts, "  ")

	model.viewport.SetContent(model.body)
	if model.following {
		model.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	return strings.Join([]string{
		model.header,
		separator,
		model.viewport.View(),
		model.renderHelp(),
	}, "\n")
}

func (model Model) renderHelp() string {
	var parts []string
	for _, binding := range model.keys.ShortHelp() {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	if !model.following {
		parts = append(parts, "(paused)")
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, "  "))
}
