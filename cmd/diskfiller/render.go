package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"diskfiller/pkg/session"
	"diskfiller/pkg/types"
	"diskfiller/pkg/utils"
	"diskfiller/pkg/volume"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	msgCompleted = "Disk fill process completed and files have been deleted."
	msgStopped   = "Disk fill process was stopped and files have been deleted."
)

// Style definitions
var (
	primaryColor   = lipgloss.Color("#FF79C6") // Pink
	secondaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor    = lipgloss.Color("#50FA7B") // Green
	warningColor   = lipgloss.Color("#FFB86C") // Orange
	dangerColor    = lipgloss.Color("#FF5555") // Red
	mutedColor     = lipgloss.Color("#6272A4")
	fgColor        = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	accentValueStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	warningValueStyle = lipgloss.NewStyle().
				Foreground(warningColor).
				Bold(true)

	dangerValueStyle = lipgloss.NewStyle().
				Foreground(dangerColor).
				Bold(true)
)

func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(float64(width) * percent / 100)
	empty := width - filled

	bar := lipgloss.NewStyle().Foreground(accentColor).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(lipgloss.Color("#333333")).Render(strings.Repeat("░", empty))

	return fmt.Sprintf("%s %.1f%%", bar, percent)
}

func percentOf(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

// renderer prints the events of a fill run as they arrive. It also
// serializes writes coming from the stdin command loop.
type renderer struct {
	mu        sync.Mutex
	out       io.Writer
	plain     bool
	targetMiB int64
}

var _ session.Observer = (*renderer)(nil)

func newRenderer(out io.Writer, plain bool, targetMiB int64) *renderer {
	return &renderer{out: out, plain: plain, targetMiB: targetMiB}
}

func (r *renderer) OnProgress(mib int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plain {
		fmt.Fprintf(r.out, "Progress: %d/%d MB\n", mib, r.targetMiB)
		return
	}
	fmt.Fprintf(r.out, "%s %s\n",
		renderProgressBar(percentOf(mib, r.targetMiB), 30),
		mutedStyle.Render(fmt.Sprintf("%d/%d MB", mib, r.targetMiB)))
}

func (r *renderer) OnLog(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plain {
		fmt.Fprintln(r.out, message)
		return
	}
	fmt.Fprintln(r.out, logStyle(message).Render(message))
}

func (r *renderer) OnFinished(types.Result) {}

// Notice prints a line that did not come from the worker.
func (r *renderer) Notice(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if r.plain {
		fmt.Fprintln(r.out, msg)
		return
	}
	fmt.Fprintln(r.out, mutedStyle.Render("» "+msg))
}

func logStyle(message string) lipgloss.Style {
	switch {
	case strings.HasPrefix(message, "Error"):
		return dangerValueStyle
	case strings.HasPrefix(message, "Disk space is low"),
		strings.HasPrefix(message, "Stopping"),
		message == "Paused.":
		return warningValueStyle
	case message == "Process completed.":
		return accentValueStyle
	default:
		return lipgloss.NewStyle().Foreground(fgColor)
	}
}

// summaryMessage is the closing line shown once a run has ended.
func summaryMessage(res types.Result) string {
	switch res.Outcome {
	case types.OutcomeCompleted:
		return msgCompleted
	case types.OutcomeStopped:
		return msgStopped
	default:
		return fmt.Sprintf("Disk fill process failed: %v. Files have been deleted.", res.Err)
	}
}

func renderSummary(res types.Result, plain bool) string {
	msg := summaryMessage(res)
	if plain {
		return fmt.Sprintf("%s\nFiles written: %d (%s)", msg, res.FilesWritten, utils.FormatMiB(res.WrittenMiB))
	}

	title, color := "✅ Completed", accentColor
	switch res.Outcome {
	case types.OutcomeStopped:
		title, color = "⏹ Stopped", warningColor
	case types.OutcomeFailed:
		title, color = "❌ Failed", dangerColor
	}

	lines := []string{
		titleStyle.Foreground(color).Render(title),
		valueStyle.Render(msg),
		mutedStyle.Render(fmt.Sprintf("Files written: %d (%s)", res.FilesWritten, utils.FormatMiB(res.WrittenMiB))),
	}
	if res.Reason == types.ReasonLowSpace {
		lines = append(lines, warningValueStyle.Render("Stopped early: free space fell below "+utils.FormatMiB(types.LowSpaceFloor/types.MiB)))
	}
	return panelStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func newTable(borderColor lipgloss.Color) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(lipgloss.Color("#ffffff")).
					Bold(true).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Padding(0, 1)
			}
		})
}

func renderUsage(path string, u volume.Usage, plain bool) string {
	if plain {
		return fmt.Sprintf("Volume: %s\nTotal: %s\nUsed: %s\nAvailable space: %d MB",
			path, formatBytes(u.Total), formatBytes(u.Used), u.FreeMiB())
	}

	usedPct := float64(0)
	if u.Total > 0 {
		usedPct = float64(u.Used) * 100 / float64(u.Total)
	}

	freeStyle := accentValueStyle
	if u.BelowFloor() {
		freeStyle = dangerValueStyle
	}

	t := newTable(secondaryColor).Headers("METRIC", "VALUE")
	t.Row("📁 Volume", path)
	t.Row("📦 Total", formatBytes(u.Total))
	t.Row("📋 Used", formatBytes(u.Used)+"  "+renderProgressBar(usedPct, 20))
	t.Row("✅ Available space", freeStyle.Render(fmt.Sprintf("%d MB", u.FreeMiB())))
	return t.Render()
}

func renderStatus(st session.Status, plain bool) string {
	rows := [][2]string{
		{"State", st.State.String()},
		{"Run", orDash(st.RunID)},
		{"Folder", orDash(st.Dir)},
		{"Progress", fmt.Sprintf("%d/%d MB", st.ProgressMiB, st.TargetMiB)},
		{"Chunk", fmt.Sprintf("%d MB", st.ChunkMiB)},
		{"Files", fmt.Sprintf("%d", st.FilesWritten)},
		{"Elapsed", st.Elapsed.Round(100 * time.Millisecond).String()},
		{"Throughput", fmt.Sprintf("%.1f MB/s", st.ThroughputMiBps)},
		{"Last log", orDash(st.LastLog)},
		{"Actions", actions(st.Controls)},
	}
	if st.Outcome != types.OutcomeNone {
		rows = append(rows, [2]string{"Outcome", string(st.Outcome)})
	}
	if st.Error != "" {
		rows = append(rows, [2]string{"Error", st.Error})
	}

	if plain {
		var b strings.Builder
		for _, row := range rows {
			fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
		}
		return strings.TrimSuffix(b.String(), "\n")
	}

	t := newTable(primaryColor).Headers("FIELD", "VALUE")
	for _, row := range rows {
		t.Row(row[0], row[1])
	}
	out := t.Render()
	if st.TargetMiB > 0 {
		out += "\n" + renderProgressBar(percentOf(st.ProgressMiB, st.TargetMiB), 40)
	}
	return out
}

func actions(c session.Controls) string {
	var names []string
	if c.Start {
		names = append(names, "start")
	}
	if c.Pause {
		names = append(names, "pause")
	}
	if c.Resume {
		names = append(names, "resume")
	}
	if c.Stop {
		names = append(names, "stop")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
