package contract

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func outcomeStyle(o domain.Outcome) lipgloss.Style {
	switch o {
	case domain.Pass:
		return passStyle
	case domain.Fail:
		return failStyle
	case domain.Error:
		return errorStyle
	default:
		return skipStyle
	}
}

// WriteReport renders a colored, human-readable validation report.
func WriteReport(w io.Writer, r *domain.Report) error {
	return render(w, r, true)
}

// WritePlainReport renders the same report without ANSI styling, for log
// files and non-terminal sinks.
func WritePlainReport(w io.Writer, r *domain.Report) error {
	return render(w, r, false)
}

func render(w io.Writer, r *domain.Report, color bool) error {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	for _, ph := range r.Phases {
		// The separator run is purely cosmetic and is omitted from
		// non-terminal sinks.
		if color {
			title := fmt.Sprintf("== %s ", ph.Phase.Title())
			b.WriteString(headerStyle.Render(title + strings.Repeat("=", max(0, 46-len(title)))))
		} else {
			b.WriteString(ph.Phase.Title())
		}
		b.WriteByte('\n')

		for _, cr := range ph.Results {
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				style(outcomeStyle(cr.Outcome), fmt.Sprintf("%-5s", cr.Outcome)),
				cr.Title))
			if cr.Message != "" {
				b.WriteString(style(dimStyle, indent(cr.Message, 9)))
				b.WriteByte('\n')
			}
		}
		b.WriteString(style(dimStyle, fmt.Sprintf("  %d passed, %d failed, %d errors, %d skipped in %s\n",
			ph.Count(domain.Pass), ph.Count(domain.Fail),
			ph.Count(domain.Error), ph.Count(domain.Skip),
			ph.Elapsed.Round(time.Millisecond))))
		b.WriteByte('\n')
	}

	if r.Success() {
		b.WriteString(style(passStyle, "Validation succeeded."))
	} else {
		b.WriteString(style(failStyle, "Validation failed"))
		var parts []string
		for _, sev := range []domain.Severity{domain.Fatal, domain.Warning, domain.Unused} {
			if n := r.SeverityBreakdown()[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		if len(parts) > 0 {
			b.WriteString(style(failStyle, fmt.Sprintf(" with %s", strings.Join(parts, ", "))))
		}
		b.WriteString(style(failStyle, fmt.Sprintf(" at threshold %s.", r.Threshold)))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func indent(text string, spaces int) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
