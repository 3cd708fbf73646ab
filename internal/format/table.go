package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/koe/internal/scheduler"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/store"
	"github.com/harunnryd/koe/internal/window"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

const timeLayout = "2006-01-02 15:04"

type TableFormatter struct {
	headerStyle  lipgloss.Style
	keyStyle     lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		keyStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Padding(0, 1),
		cellStyle:    lipgloss.NewStyle().Padding(0, 1),
		oddRowStyle:  lipgloss.NewStyle().Foreground(gray).Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().Foreground(lightGray).Padding(0, 1),
		borderStyle:  lipgloss.NewStyle().Foreground(purple),
	}
}

// list is a striped table with a header row.
func (f *TableFormatter) list(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

// card is a two column key/value table.
func (f *TableFormatter) card() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.keyStyle
			}
			return f.cellStyle
		})
}

func (f *TableFormatter) Stats(s stats.Snapshot) (string, error) {
	summary := f.card()
	summary.Row("Total", strconv.Itoa(s.TotalExecutions))
	summary.Row("Successful", strconv.Itoa(s.SuccessfulExecutions))
	summary.Row("Failed", strconv.Itoa(s.FailedExecutions))
	summary.Row("Success rate", s.SuccessRate)
	summary.Row("Today", fmt.Sprintf("%d (%d ok, %d failed)", s.TodayExecutions, s.TodaySuccessful, s.TodayFailed))

	out := []string{summary.String()}

	if days := s.Days(); len(days) > 0 {
		daily := f.list("Date", "Total", "OK", "Failed", "Types")
		for _, day := range days {
			d := s.DailyStats[day]
			daily.Row(day, strconv.Itoa(d.Total), strconv.Itoa(d.Successful), strconv.Itoa(d.Failed), typeCounts(d.Types))
		}
		out = append(out, daily.String())
	}

	if len(s.ExecutionHistory) > 0 {
		history := f.list("Time", "Intent", "Query", "Result")
		for _, e := range s.ExecutionHistory {
			result := "ok"
			if !e.Success {
				result = truncateString(e.Error, 40)
			}
			history.Row(e.Timestamp.Local().Format(timeLayout), e.Intent, truncateString(e.Query, 30), result)
		}
		out = append(out, history.String())
	}

	return strings.Join(out, "\n"), nil
}

func (f *TableFormatter) Windows(entries []window.Entry) (string, error) {
	if len(entries) == 0 {
		return "No tracked windows", nil
	}
	t := f.list("ID", "Type", "Query", "Platform", "Opened")
	for _, e := range entries {
		t.Row(e.ID, e.Type, truncateString(e.Query, 30), e.Platform, e.OpenedAt.Local().Format(timeLayout))
	}
	return t.String(), nil
}

func (f *TableFormatter) Routines(routines []scheduler.Routine) (string, error) {
	if len(routines) == 0 {
		return "No routines", nil
	}
	t := f.list("ID", "Schedule", "Utterance", "Next run", "Last run")
	for _, r := range routines {
		t.Row(r.ID, r.Schedule, truncateString(r.Utterance, 35), formatTime(r.NextRun), formatTime(r.LastRun))
	}
	return t.String(), nil
}

func (f *TableFormatter) Sessions(sessions []store.SessionMeta) (string, error) {
	if len(sessions) == 0 {
		return "No sessions", nil
	}
	t := f.list("ID", "Source", "Status", "Updated")
	for _, s := range sessions {
		t.Row(s.ID, s.Metadata["source"], s.Status, formatTime(s.UpdatedAt))
	}
	return t.String(), nil
}

func typeCounts(types map[string]int) string {
	keys := make([]string, 0, len(types))
	for k := range types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, types[k]))
	}
	return strings.Join(parts, " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
