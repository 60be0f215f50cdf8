package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dialstudy/dialstudy/pkg/screen"
)

const (
	gaugeWidth    = 41
	minGaugeWidth = 11
	maxGaugeWidth = 121
)

// Render lays out a view as terminal text at scale 1.
func Render(v screen.View, notice string) string {
	return RenderScaled(v, notice, 1)
}

// RenderScaled lays out a view as terminal text. A non-empty notice is
// drawn as a modal box above the screen. scale is the experiment's UI
// scale factor and sizes the gauge.
func RenderScaled(v screen.View, notice string, scale float64) string {
	var b strings.Builder

	if notice != "" {
		b.WriteString(noticeStyle.Render(accentStyle.Render("! ")+notice+"\n"+mutedStyle.Render("type ok to dismiss")))
		b.WriteString("\n\n")
	}

	b.WriteString(accentStyle.Render("▸ " + strings.ToUpper(string(v.Kind))))
	b.WriteString("\n")
	if v.Title != "" {
		b.WriteString(titleStyle.Render("  " + v.Title))
		b.WriteString("\n")
	}
	if v.Body != "" {
		b.WriteString(indent(v.Body))
		b.WriteString("\n")
	}

	if v.Image != "" {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("image"), codeStyle.Render(v.Image))
	}
	if v.Video != "" {
		state := "▶ playing"
		if v.Paused {
			state = "❚❚ paused"
		}
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(state), codeStyle.Render(v.Video))
	}
	if v.Gauge != nil {
		b.WriteString(renderGauge(v.Gauge, scaledGaugeWidth(scale)))
	}
	for i, c := range v.Choices {
		marker := mutedStyle.Render("( )")
		if i == v.Selected {
			marker = successStyle.Render("(•)")
		}
		fmt.Fprintf(&b, "  %s %d %s\n", marker, i, c)
	}
	if v.Kind == screen.KindText || v.Kind == screen.KindEntry {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(">"), v.Text)
		if v.Hint != "" {
			b.WriteString(mutedStyle.Render("  " + v.Hint))
			b.WriteString("\n")
		}
	}

	if v.Prompt != "" {
		style := mutedStyle
		if v.NextEnabled {
			style = successStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render("  " + v.Prompt))
		b.WriteString("\n")
	}
	return b.String()
}

// scaledGaugeWidth keeps the width odd so the centre tick sits on 0.
func scaledGaugeWidth(scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(gaugeWidth * scale))
	w = max(minGaugeWidth, min(maxGaugeWidth, w))
	if w%2 == 0 {
		w++
	}
	return w
}

func renderGauge(g *screen.Gauge, width int) string {
	var b strings.Builder
	if g.Question != "" {
		b.WriteString(titleStyle.Render("  " + g.Question))
		b.WriteString("\n")
	}

	pos := int(math.Round(g.Fraction() * float64(width-1)))
	pos = max(0, min(width-1, pos))
	bar := []rune(strings.Repeat("─", width))
	bar[width/2] = '┼'
	bar[pos] = '●'

	style := accentStyle
	if g.Disabled {
		style = mutedStyle
	}
	fmt.Fprintf(&b, "  %s %s %s  %s\n",
		mutedStyle.Render(g.LeftLabel),
		style.Render(string(bar)),
		mutedStyle.Render(g.RightLabel),
		titleStyle.Render(fmt.Sprintf("%d", g.Value)))
	return b.String()
}

func indent(s string) string {
	return lipgloss.NewStyle().PaddingLeft(2).Render(s)
}
