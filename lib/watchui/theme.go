// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-qa/firefly/protocol"
)

// Theme is the dashboard palette. Colors are ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	StatusIdle    lipgloss.Color
	StatusPending lipgloss.Color
	StatusRunning lipgloss.Color
	StatusSuccess lipgloss.Color
	StatusPartial lipgloss.Color
	StatusFail    lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color
}

// DefaultTheme is tuned for dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	StatusIdle:    lipgloss.Color("245"), // gray
	StatusPending: lipgloss.Color("75"),  // blue
	StatusRunning: lipgloss.Color("220"), // amber
	StatusSuccess: lipgloss.Color("114"), // green
	StatusPartial: lipgloss.Color("208"), // orange
	StatusFail:    lipgloss.Color("196"), // red

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	ErrorText:        lipgloss.Color("203"),
}

// StatusColor returns the color for an execution or worker status.
// Unknown values are faint.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case string(protocol.StatusIdle):
		return theme.StatusIdle
	case string(protocol.StatusPending), string(protocol.StatusPrimed),
		string(protocol.WorkerSetup), string(protocol.WorkerTeardown):
		return theme.StatusPending
	case string(protocol.StatusRunning), string(protocol.WorkerWorking),
		string(protocol.WorkerProceedFinish):
		return theme.StatusRunning
	case string(protocol.StatusSuccess), string(protocol.StatusFinished):
		return theme.StatusSuccess
	case string(protocol.StatusPartialSuccess):
		return theme.StatusPartial
	case string(protocol.StatusFail), string(protocol.WorkerError):
		return theme.StatusFail
	default:
		return theme.FaintText
	}
}

// badge renders status in its color.
func (theme Theme) badge(status string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.StatusColor(status)).Render(status)
}
