package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/theme"
)

func successLine(msg string) string {
	return theme.SuccessStyle.Render("✓ " + msg)
}

func errorLine(err error) string {
	return theme.ErrorStyle.Render("✗ " + err.Error())
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "  %s %s\n", theme.KeyStyle.Render(label+":"), val)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// renderFormTable lays forms out in aligned columns.
func renderFormTable(forms []model.PendingForm) string {
	headers := []string{"TOKEN", "STATUS", "CANDIDATE", "SENDER", "CREATED"}
	rows := make([][]string, 0, len(forms))
	for _, f := range forms {
		rows = append(rows, []string{
			f.Token, string(f.Status), f.CandidateEmail, f.SenderEmail, formatTime(f.CreatedAt),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = theme.HeaderStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	b.WriteString("\n")

	for r, row := range rows {
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2).PaddingLeft(1)
			switch i {
			case 1:
				style = theme.StatusStyle(forms[r].Status).Width(widths[i] + 2).PaddingLeft(1)
			case 4:
				style = theme.MutedStyle.Width(widths[i] + 2).PaddingLeft(1)
			}
			cells[i] = style.Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}

// renderForm renders one form with its answers in a bordered panel.
func renderForm(f model.PendingForm) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", theme.KeyStyle.Render(label+":"), value)
	}

	line("Token", f.Token)
	line("Status", theme.StatusStyle(f.Status).Render(string(f.Status)))
	line("Sender", f.SenderEmail)
	line("Candidate", f.CandidateEmail)
	line("Created", formatTime(f.CreatedAt))
	if f.CompletedAt != nil {
		line("Completed", formatTime(*f.CompletedAt))
	}

	if len(f.ResponseData) > 0 {
		b.WriteString("\n")
		b.WriteString(theme.HeaderStyle.Render("Answers"))
		b.WriteString("\n")
		keys := make([]string, 0, len(f.ResponseData))
		for k := range f.ResponseData {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			line(k, f.ResponseData[k])
		}
	}

	return theme.PanelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
