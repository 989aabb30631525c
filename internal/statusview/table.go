// Package statusview renders a one-shot colored process table for the CLI,
// a thin lipgloss adapter in place of the teacher's interactive bubbletea
// dashboard (table rendering only, no event loop).
package statusview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gophpeek/guardian/internal/registry"
)

var (
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#00FF00")
	errorColor   = lipgloss.Color("#FF0000")
	warnColor    = lipgloss.Color("#FFA500")
	dimColor     = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
)

func stateStyle(s registry.State) lipgloss.Style {
	switch s {
	case registry.Running:
		return successStyle
	case registry.Failed:
		return errorStyle
	case registry.Starting, registry.Stopping:
		return warnStyle
	default:
		return dimStyle
	}
}

// Render formats the snapshots as an aligned, colored table in the order
// given; it does not sort them.
func Render(snapshots []registry.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("guardian process status"))
	b.WriteString("\n\n")

	cols := []string{"NAME", "STATE", "PID", "RESTARTS", "UPTIME", "LAST EXIT"}
	widths := []int{20, 10, 8, 9, 12, 10}

	for i, c := range cols {
		b.WriteString(headerStyle.Render(pad(c, widths[i])))
	}
	b.WriteString("\n")

	for _, snap := range snapshots {
		pid := "-"
		if snap.HasPID {
			pid = fmt.Sprintf("%d", snap.PID)
		}
		uptime := "-"
		if snap.State == registry.Running && !snap.StartedAt.IsZero() {
			uptime = time.Since(snap.StartedAt).Round(time.Second).String()
		}
		exit := "-"
		if snap.HasLastExitCode {
			exit = fmt.Sprintf("%d", snap.LastExitCode)
		}

		style := stateStyle(snap.State)
		b.WriteString(pad(snap.Name, widths[0]))
		b.WriteString(style.Render(pad(string(snap.State), widths[1])))
		b.WriteString(pad(pid, widths[2]))
		b.WriteString(pad(fmt.Sprintf("%d", snap.RestartCount), widths[3]))
		b.WriteString(pad(uptime, widths[4]))
		b.WriteString(pad(exit, widths[5]))
		b.WriteString("\n")
	}

	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width-1] + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}
