package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clinic/clinic/internal/domain/queue"
)

var (
	numberStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	screenStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// renderDisplay draws the now-serving screen for e, or an idle screen when
// there is nothing to show.
func renderDisplay(e *queue.Entry) string {
	if e == nil {
		return screenStyle.Render(mutedStyle.Render("No patients waiting"))
	}

	heading := "Next"
	if e.Status == queue.StatusInProgress {
		heading = "Now serving"
	}
	lines := []string{
		mutedStyle.Render(heading),
		numberStyle.Render(fmt.Sprintf("#%d", e.QueueNumber)),
		e.PatientName,
	}
	if e.Doctor != "" {
		lines = append(lines, mutedStyle.Render(e.Doctor))
	}
	return screenStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderQueue(entries []queue.Entry) string {
	if len(entries) == 0 {
		return mutedStyle.Render("Queue is empty")
	}

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		status := mutedStyle.Render(string(e.Status))
		if e.Status.Active() {
			status = activeStyle.Render(string(e.Status))
		}
		fmt.Fprintf(&sb, "%s  %-24s %-12s %s", numberStyle.Render(fmt.Sprintf("#%-3d", e.QueueNumber)), e.PatientName, e.Type, status)
	}
	return sb.String()
}
