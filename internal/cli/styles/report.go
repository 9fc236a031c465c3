package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bryanchriswhite/VAProbe/internal/device"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
)

// ReportRenderer draws probe reports, device lists and self-test results.
type ReportRenderer struct {
	theme *Theme
}

func NewReportRenderer(theme *Theme) *ReportRenderer {
	return &ReportRenderer{theme: theme}
}

func (r *ReportRenderer) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(r.theme.Border)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.theme.Header
			}
			return r.theme.Cell
		})
}

func (r *ReportRenderer) field(name, value string) string {
	return fmt.Sprintf("%s %s", r.theme.Subtle.Render(fmt.Sprintf("%-9s", name)), r.theme.Normal.Render(value))
}

func (r *ReportRenderer) summary(rep *probe.Report) string {
	return strings.Join([]string{
		r.field("Source", rep.Source),
		r.field("Library", rep.Library),
		r.field("VA-API", rep.Version),
		r.field("Vendor", rep.Vendor),
	}, "\n")
}

// Info is the short report: who the driver is and which profiles it has.
func (r *ReportRenderer) Info(rep *probe.Report) string {
	t := r.table("Profile", "Entrypoints")
	for _, p := range rep.Profiles {
		names := make([]string, 0, len(p.Entrypoints))
		for _, e := range p.Entrypoints {
			names = append(names, e.Name)
		}
		t.Row(p.Name, strings.Join(names, ", "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, r.summary(rep), "", t.String())
}

// Dump is the long report with every attribute.
func (r *ReportRenderer) Dump(rep *probe.Report) string {
	sections := []string{r.summary(rep)}

	for _, p := range rep.Profiles {
		for _, e := range p.Entrypoints {
			title := r.theme.BoxHeader.Render(fmt.Sprintf("%s / %s (%s)", p.Name, e.Name, e.Kind))
			var lines []string
			if e.Err != "" {
				lines = append(lines, r.theme.ErrorStyle.Render(IconX+" "+e.Err))
			}
			for _, a := range e.ConfigAttributes {
				if !a.Supported {
					continue
				}
				lines = append(lines, r.field(a.Name, a.Value))
			}
			if len(e.SurfaceAttributes) > 0 {
				lines = append(lines, r.theme.Subtle.Render("surface:"))
				for _, a := range e.SurfaceAttributes {
					lines = append(lines, "  "+r.field(a.Name, a.Value))
				}
			}
			sections = append(sections, r.theme.Box.Render(title+"\n"+strings.Join(lines, "\n")))
		}
	}

	formats := r.table("FourCC", "BPP", "Depth", "Byte order", "RT format")
	for _, f := range rep.ImageFormats {
		depth := ""
		if f.Depth != 0 {
			depth = fmt.Sprint(f.Depth)
		}
		formats.Row(f.FourCC, fmt.Sprint(f.BitsPerPixel), depth, f.ByteOrder, f.RTFormat)
	}
	sections = append(sections, formats.String())

	if len(rep.DisplayAttributes) > 0 {
		attrs := r.table("Display attribute", "Min", "Max", "Value", "Settable")
		for _, a := range rep.DisplayAttributes {
			attrs.Row(a.Name, fmt.Sprint(a.Min), fmt.Sprint(a.Max), fmt.Sprint(a.Value), yesNo(a.Settable))
		}
		sections = append(sections, attrs.String())
	}
	for _, w := range rep.Warnings {
		sections = append(sections, r.theme.WarningStyle.Render(IconWarning+" "+w))
	}
	return strings.Join(sections, "\n\n")
}

// Devices lists DRM render nodes.
func (r *ReportRenderer) Devices(nodes []device.Node) string {
	if len(nodes) == 0 {
		return r.theme.WarningStyle.Render(IconWarning + " no DRM render nodes found")
	}
	t := r.table("Node", "Driver", "Version", "Date", "PCI")
	for _, n := range nodes {
		version := n.Version
		if n.Err != "" && version == "" {
			version = r.theme.ErrorStyle.Render(n.Err)
		}
		pci := ""
		if n.PCIVendor != "" {
			pci = n.PCIVendor + ":" + strings.TrimPrefix(n.PCIDevice, "0x")
		}
		t.Row(n.Path, n.Driver, version, n.Date, pci)
	}
	return t.String()
}

// SelfTest shows the steps and the outcome of a round trip.
func (r *ReportRenderer) SelfTest(res *selftest.Result, err error) string {
	if res == nil {
		return r.theme.ErrorStyle.Render(IconX + " self-test failed: " + err.Error())
	}
	t := r.table("Step", "Time", "Result")
	for _, s := range res.Steps {
		result := r.theme.SuccessStyle.Render(IconCheck)
		if s.Err != "" {
			result = r.theme.ErrorStyle.Render(IconX + " " + s.Err)
		}
		t.Row(s.Name, s.Duration.String(), result)
	}

	how := "copied with vaGetImage"
	if res.Derived {
		how = "derived"
	}
	lines := []string{
		r.field("Format", fmt.Sprintf("%s %dx%d", res.Format, res.Width, res.Height)),
		r.field("Readback", how),
		r.field("Elapsed", res.Elapsed.String()),
		"",
		t.String(),
		"",
	}
	switch {
	case err != nil:
		lines = append(lines, r.theme.ErrorStyle.Render(IconX+" self-test failed: "+err.Error()))
	case res.Passed:
		lines = append(lines, r.theme.SuccessStyle.Render(IconCheck+" round trip matches"))
	default:
		lines = append(lines, r.theme.ErrorStyle.Render(fmt.Sprintf("%s %d pixels differ", IconX, res.Mismatches)))
	}
	return strings.Join(lines, "\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
