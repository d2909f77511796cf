// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-qa/firefly/aggregate"
)

// renderer turns aggregates into body text.
type renderer struct {
	theme Theme
}

func (r renderer) section(title string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(r.theme.HeaderForeground).Render(title)
}

func (r renderer) faint(text string) string {
	return lipgloss.NewStyle().Foreground(r.theme.FaintText).Render(text)
}

// script renders a script execution: log, result, errors, environment.
func (r renderer) script(execution *aggregate.ScriptExecution) string {
	var lines []string

	lines = append(lines, r.section("Log"))
	entries := execution.OrderedLog()
	if len(entries) == 0 {
		lines = append(lines, r.faint("  (no output yet)"))
	}
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s %s", r.faint(fmt.Sprintf("%5d", entry.Index)), entry.Line))
	}

	if execution.Result != nil {
		lines = append(lines, "", r.section("Result ("+string(execution.Result.Type)+")"))
		lines = append(lines, indentJSON(execution.Result.Object)...)
	}

	if len(execution.Errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(r.theme.ErrorText)
		lines = append(lines, "", r.section(fmt.Sprintf("Errors (%d)", len(execution.Errors))))
		for _, scriptError := range execution.Errors {
			lines = append(lines, errorStyle.Render(fmt.Sprintf("  %s: %s", scriptError.Name, scriptError.Message)))
			for _, traceLine := range strings.Split(strings.TrimRight(scriptError.Traceback, "\n"), "\n") {
				if traceLine != "" {
					lines = append(lines, r.faint("    "+traceLine))
				}
			}
		}
	}

	lines = append(lines, r.environment(execution.EnvUsed)...)
	return strings.Join(lines, "\n")
}

// loadTest renders a load-test execution: workers, tasks, charts.
func (r renderer) loadTest(execution *aggregate.LoadTestExecution) string {
	var lines []string

	ordinals := execution.WorkerOrdinals()
	lines = append(lines, r.section(fmt.Sprintf("Workers (%d)", len(ordinals))))
	if len(ordinals) == 0 {
		lines = append(lines, r.faint("  (no workers reported)"))
	}
	for _, ordinal := range ordinals {
		lines = append(lines, fmt.Sprintf("  #%-3d %s", ordinal, r.theme.badge(string(execution.Worker(ordinal)))))
	}

	lines = append(lines, "", r.section("Tasks"))
	if at, counts, ok := execution.LatestTasks(); ok {
		lines = append(lines, fmt.Sprintf("  %s  pending %d  setup %d  working %d  teardown %d  finished %d  (total %d)",
			r.faint(at), counts.Pending, counts.Setup, counts.Working, counts.Teardown, counts.Finished, counts.Total()))
	} else {
		lines = append(lines, r.faint("  (no task history)"))
	}

	names := execution.ChartNames()
	if len(names) > 0 {
		lines = append(lines, "", r.section("Charts"))
	}
	for _, name := range names {
		series := execution.ChartSeries(name)
		times := slices.Sorted(maps.Keys(series))
		if len(times) == 0 {
			continue
		}
		last := times[len(times)-1]
		values := make([]string, len(series[last]))
		for index, value := range series[last] {
			values[index] = fmt.Sprint(value)
		}
		lines = append(lines, fmt.Sprintf("  %-20s %s  %s  %s",
			name, r.faint(last), strings.Join(values, " "), r.faint(fmt.Sprintf("(%d points)", len(times)))))
	}

	lines = append(lines, r.environment(execution.EnvUsed)...)
	return strings.Join(lines, "\n")
}

func (r renderer) environment(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	lines := []string{"", r.section("Environment")}
	for _, name := range slices.Sorted(maps.Keys(env)) {
		lines = append(lines, fmt.Sprintf("  %s=%s", name, env[name]))
	}
	return lines
}

// indentJSON pretty-prints raw, or returns it as-is if it is not
// valid JSON.
func indentJSON(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var buffer bytes.Buffer
	if err := json.Indent(&buffer, raw, "  ", "  "); err != nil {
		return []string{"  " + string(raw)}
	}
	return strings.Split("  "+buffer.String(), "\n")
}
