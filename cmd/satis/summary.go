package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/satis/internal/model"
)

type palette struct {
	dim, green, cyan, yellow, bold lipgloss.Style
}

// newPalette binds styles to w so colors are dropped when w is not a terminal.
func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		green:  r.NewStyle().Foreground(lipgloss.Color("42")),
		cyan:   r.NewStyle().Foreground(lipgloss.Color("39")),
		yellow: r.NewStyle().Foreground(lipgloss.Color("220")),
		bold:   r.NewStyle().Bold(true),
	}
}

const (
	separator    = "    ─────────────────────────────────"
	patternWidth = 72
)

// printSummary prints the operator-facing run summary followed by the most
// frequent error patterns, if any.
func printSummary(w io.Writer, snap model.Snapshot, top []model.ErrorPattern, outputPath string) {
	p := newPalette(w)
	check := p.green.Render("●")
	warn := p.yellow.Render("●")

	s := snap.Summary
	var lines []string
	lines = append(lines, "")
	lines = append(lines, p.bold.Render("    Analysis Summary"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Log files      %s", check, p.cyan.Render(fmt.Sprint(s.TotalLogFiles))))
	lines = append(lines, fmt.Sprintf("    %s  Players        %s", check, p.cyan.Render(fmt.Sprint(s.TotalUniquePlayers))))
	lines = append(lines, fmt.Sprintf("    %s  Join events    %s", check, p.cyan.Render(fmt.Sprint(s.TotalJoinEvents))))
	lines = append(lines, fmt.Sprintf("    %s  Server span    %s", check, p.cyan.Render(fmt.Sprintf("%d days", s.ServerSpanDays))))

	marker := check
	if s.TotalErrors > 0 {
		marker = warn
	}
	lines = append(lines, fmt.Sprintf("    %s  Errors         %s", marker, p.cyan.Render(fmt.Sprint(s.TotalErrors))))
	lines = append(lines, "")
	if len(top) > 0 {
		lines = append(lines, p.bold.Render("    Top Error Patterns"))
		lines = append(lines, "")
		for _, pat := range top {
			count := p.cyan.Render(fmt.Sprintf("%5d", pat.Count))
			lines = append(lines, fmt.Sprintf("    %s  %s  %s", count, p.dim.Render(fmt.Sprintf("%-7s", pat.Severity)), truncate(pat.Template, patternWidth)))
		}
		lines = append(lines, "")
	}
	lines = append(lines, p.dim.Render(separator))
	lines = append(lines, "")
	lines = append(lines, "    "+p.dim.Render("Metrics saved to ")+p.cyan.Render(shortenPath(outputPath)))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

// printServeBanner prints the dashboard server startup banner.
func printServeBanner(w io.Writer, cfg appConfig, historyEnabled bool) {
	p := newPalette(w)
	check := p.green.Render("●")
	dot := p.dim.Render("●")

	logo := p.cyan.Bold(true).Render(`
    ╔═╗╔═╗╔╦╗╦╔═╗
    ╚═╗╠═╣ ║ ║╚═╗
    ╚═╝╩ ╩ ╩ ╩╚═╝`)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+p.dim.Render("v"+version))
	lines = append(lines, "")
	lines = append(lines, p.dim.Render(separator))
	lines = append(lines, "")

	lines = append(lines, p.bold.Render("    Dashboard"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, p.cyan.Render("http://"+cfg.ServeAddr)))
	lines = append(lines, fmt.Sprintf("    %s  Snapshot       %s", check, p.dim.Render(shortenPath(cfg.Output))))
	if historyEnabled {
		lines = append(lines, fmt.Sprintf("    %s  History        %s", check, p.dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  History        %s", dot, p.dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, p.bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, p.dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, p.dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, p.dim.Render(separator))
	lines = append(lines, "")
	lines = append(lines, "    "+p.dim.Render("Press ")+p.yellow.Render("Ctrl+C")+p.dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
