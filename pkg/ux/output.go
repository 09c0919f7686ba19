// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the astvalidate CLI.
package ux

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorInfo    = lipgloss.Color("#20B9B4")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Highlight lipgloss.Style
	Resource  lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Info:      lipgloss.NewStyle().Foreground(ColorInfo),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Resource:  lipgloss.NewStyle().Bold(true).Underline(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconInfo    Icon = "ℹ"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconInfo:
		return Styles.Info.Render(string(i))
	default:
		return string(i)
	}
}

// SeverityIcon maps a severity name ("error", "warning", "info") to its icon.
func SeverityIcon(severity string) Icon {
	switch strings.ToLower(severity) {
	case "error":
		return IconError
	case "warning":
		return IconWarning
	case "info":
		return IconInfo
	default:
		return IconBullet
	}
}

// Finding is one problem as shown to the user.
type Finding struct {
	Resource string
	Line     int
	Column   int
	Severity string
	RuleID   string
	Message  string
}

// Location returns "resource:line:column", omitting unknown parts.
func (f Finding) Location() string {
	switch {
	case f.Line <= 0:
		return f.Resource
	case f.Column <= 0:
		return fmt.Sprintf("%s:%d", f.Resource, f.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", f.Resource, f.Line, f.Column)
	}
}

// Counts summarizes a validation run for Summary.
type Counts struct {
	Units    int
	Errors   int
	Warnings int
	Infos    int
	Failures int
}

// Printer writes styled output to w according to a personality level.
type Printer struct {
	w     io.Writer
	level PersonalityLevel
}

// NewPrinter creates a printer for w using the current personality level.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, level: GetPersonalityLevel()}
}

// NewPrinterWithLevel creates a printer with an explicit level.
func NewPrinterWithLevel(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{w: w, level: level}
}

// Level returns the printer's personality level.
func (p *Printer) Level() PersonalityLevel {
	return p.level
}

// Title prints a styled title. Machine output omits it.
func (p *Printer) Title(text string) {
	if p.level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.level == PersonalityMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// Findings prints findings grouped by resource.
//
// Machine output is one tab-separated line per finding:
//
//	resource:line:column<TAB>severity<TAB>rule<TAB>message
//
// Findings are printed in resource, line, column order.
func (p *Printer) Findings(findings []Finding) {
	sorted := append([]Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})

	if p.level == PersonalityMachine {
		for _, f := range sorted {
			fmt.Fprintf(p.w, "%s\t%s\t%s\t%s\n", f.Location(), f.Severity, f.RuleID, f.Message)
		}
		return
	}

	current := ""
	for _, f := range sorted {
		if f.Resource != current {
			if current != "" {
				fmt.Fprintln(p.w)
			}
			current = f.Resource
			fmt.Fprintln(p.w, Styles.Resource.Render(f.Resource))
		}
		pos := fmt.Sprintf("%d:%d", f.Line, f.Column)
		if p.level == PersonalityMinimal {
			fmt.Fprintf(p.w, "  %s %s %s [%s]\n", SeverityIcon(f.Severity).Render(), pos, f.Message, f.RuleID)
			continue
		}
		fmt.Fprintf(p.w, "  %s %s  %s %s\n",
			SeverityIcon(f.Severity).Render(),
			Styles.Muted.Render(fmt.Sprintf("%-7s", pos)),
			f.Message,
			Styles.Muted.Render("("+f.RuleID+")"))
	}
}

// Summary prints the counts line of a run.
func (p *Printer) Summary(c Counts) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.w, "SUMMARY: units=%d errors=%d warnings=%d infos=%d rule_failures=%d\n",
			c.Units, c.Errors, c.Warnings, c.Infos, c.Failures)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s  %s %s",
		Styles.Bold.Render(fmt.Sprintf("%d", c.Units)), Styles.Muted.Render("units"),
		Styles.Error.Render(fmt.Sprintf("%d", c.Errors)), Styles.Muted.Render("errors"),
		Styles.Warning.Render(fmt.Sprintf("%d", c.Warnings)), Styles.Muted.Render("warnings"),
		Styles.Info.Render(fmt.Sprintf("%d", c.Infos)), Styles.Muted.Render("infos"),
	)
	if c.Failures > 0 {
		fmt.Fprintf(p.w, "  %s %s", Styles.Error.Render(fmt.Sprintf("%d", c.Failures)), Styles.Muted.Render("rule failures"))
	}
	fmt.Fprintln(p.w)
}

// ProgressBar renders a simple progress bar
func (p *Printer) ProgressBar(current, total, width int) string {
	if p.level == PersonalityMachine || total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	bar := Styles.Success.Render(strings.Repeat("█", max(filled, 0))) +
		Styles.Muted.Render(strings.Repeat("░", max(width-filled, 0)))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
