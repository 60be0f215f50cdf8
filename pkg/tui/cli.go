// Package tui is the terminal operator console: it draws the active
// screen, reads operator commands from stdin and emulates the dial on the
// keyboard for rehearsals without hardware.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	noticeStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 2)
)

// PrintHeader prints the console banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  DIALSTUDY")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Rotary dial rating sessions"))
	fmt.Fprintln(w)
}

// ExportReport summarizes an export run.
type ExportReport struct {
	Participants int
	Files        []string
	Skipped      []string
	Duration     time.Duration
}

// PrintExportReport prints results after an export.
func PrintExportReport(w io.Writer, report *ExportReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ EXPORT COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Participants:"), titleStyle.Render(fmt.Sprint(report.Participants)))
	for _, f := range report.Files {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Wrote:"), codeStyle.Render(f))
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("Skipped:"), s)
	}
	if report.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(report.Duration)))
	}
	fmt.Fprintln(w)
}

// SessionRow is one line of the status table.
type SessionRow struct {
	ID          string
	Participant uint32
	Condition   string
	Phase       string
	Screen      string
	Host        string
	Age         time.Duration
}

// PrintSessions prints interrupted sessions.
func PrintSessions(w io.Writer, backend string, rows []SessionRow) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("Incomplete sessions"), mutedStyle.Render("("+backend+")"))
	fmt.Fprintln(w, mutedStyle.Render("  ─────────────────────────────────────"))
	if len(rows) == 0 {
		fmt.Fprintln(w, successStyle.Render("  none"))
		fmt.Fprintln(w)
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s %s %s %s\n",
			accentStyle.Render(fmt.Sprintf("%-6d", r.Participant)),
			titleStyle.Render(fmt.Sprintf("%-12s", r.Condition)),
			fmt.Sprintf("%-14s", r.Phase+"/"+r.Screen),
			mutedStyle.Render(formatDuration(r.Age)+" ago"),
			mutedStyle.Render(r.ID+"@"+r.Host))
	}
	fmt.Fprintln(w)
}

// KeyValue is one line of a summary block.
type KeyValue struct {
	Key   string
	Value string
}

// PrintSummary prints a titled block of aligned key/value lines.
func PrintSummary(w io.Writer, title string, items []KeyValue) {
	width := 0
	for _, kv := range items {
		if len(kv.Key) > width {
			width = len(kv.Key)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ "+title))
	fmt.Fprintln(w)
	for _, kv := range items {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-*s", width+1, kv.Key+":")), kv.Value)
	}
	fmt.Fprintln(w)
}

// PlanRow is one trial block of a dry-run plan.
type PlanRow struct {
	Block   int
	VideoID int
	Bucket  string
	Path    string
}

// PrintPlan prints the trial blocks a participant would see.
func PrintPlan(w io.Writer, title string, rows []PlanRow) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  "+title))
	fmt.Fprintln(w, mutedStyle.Render("  ─────────────────────────────────────"))
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s %s %s\n",
			accentStyle.Render(fmt.Sprintf("%2d", r.Block)),
			titleStyle.Render(fmt.Sprintf("video %-4d", r.VideoID)),
			fmt.Sprintf("%-6s", r.Bucket),
			codeStyle.Render(r.Path))
	}
	fmt.Fprintln(w)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// ShowProgress creates a progress bar for processing.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
