package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bryanchriswhite/VAProbe/internal/probe"
)

type DoctorRenderer struct {
	theme *Theme
}

func NewDoctorRenderer(theme *Theme) *DoctorRenderer {
	return &DoctorRenderer{theme: theme}
}

// Render draws the checks and the verdict.
func (r *DoctorRenderer) Render(g *probe.Diagnosis) string {
	header := r.renderHeader(g.Accelerated)

	lines := make([]string, 0, len(g.Checks))
	for _, c := range g.Checks {
		lines = append(lines, r.renderCheck(c))
	}
	checks := r.theme.Box.Render(r.theme.BoxHeader.Render("Checks") + "\n" + strings.Join(lines, "\n"))

	sections := []string{header, "", checks}
	if g.Report != nil && len(g.Report.Warnings) > 0 {
		warnings := make([]string, 0, len(g.Report.Warnings))
		for _, w := range g.Report.Warnings {
			warnings = append(warnings, r.theme.WarningStyle.Render(IconWarning)+" "+r.theme.Subtle.Render(w))
		}
		sections = append(sections, "", r.theme.Box.Render(r.theme.BoxHeader.Render("Warnings")+"\n"+strings.Join(warnings, "\n")))
	}
	sections = append(sections, "", r.renderVerdict(g.Accelerated))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (r *DoctorRenderer) renderHeader(ok bool) string {
	statusStyle := r.theme.SuccessStyle
	statusText := "OK"
	if !ok {
		statusStyle = r.theme.WarningStyle
		statusText = "Needs attention"
	}
	title := fmt.Sprintf("%s %s", r.theme.Highlight.Render(IconDoctor), r.theme.Title.Render("VA-API doctor"))
	badge := r.theme.BadgeMuted.Render(statusStyle.Render(statusText))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " ", badge)
}

func (r *DoctorRenderer) statusLook(st probe.Status) (string, lipgloss.Style, string) {
	switch st {
	case probe.StatusPass:
		return IconCheck, r.theme.SuccessStyle, "OK"
	case probe.StatusWarn:
		return IconWarning, r.theme.WarningStyle, "Warning"
	case probe.StatusFail:
		return IconX, r.theme.ErrorStyle, "Failed"
	}
	return IconSkip, r.theme.Subtle, "Skipped"
}

func (r *DoctorRenderer) renderCheck(c probe.Check) string {
	icon, style, status := r.statusLook(c.Status)
	name := r.theme.Normal.Render(fmt.Sprintf("%-10s", c.Name))
	badge := r.theme.BadgeMuted.Render(style.Render(status))
	return fmt.Sprintf("%s %s %s\n  %s", style.Render(icon), name, badge, r.theme.Subtle.Render(c.Detail))
}

func (r *DoctorRenderer) renderVerdict(ok bool) string {
	if ok {
		return r.theme.SuccessStyle.Render(IconCheck + " Hardware acceleration available")
	}
	return r.theme.WarningStyle.Render(IconWarning + " Hardware acceleration unavailable, use the software fallback")
}
