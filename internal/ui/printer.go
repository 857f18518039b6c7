// Package ui prints colored status lines for the ghsync CLI.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.FgCyan, color.Bold)
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolInfo    = "•"
	SymbolPending = "○"
)

// Printer writes status lines to w.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a Printer for w; nil means stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

func (p *Printer) line(c *color.Color, symbol, format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", c.Sprint(symbol), fmt.Sprintf(format, args...))
}

func (p *Printer) Success(format string, args ...any) {
	p.line(successColor, SymbolSuccess, format, args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.line(errorColor, SymbolError, format, args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.line(warnColor, SymbolWarning, format, args...)
}

func (p *Printer) Info(format string, args ...any) {
	p.line(infoColor, SymbolInfo, format, args...)
}

// Pending prints a dimmed list entry.
func (p *Printer) Pending(item string) {
	_, _ = fmt.Fprintf(p.w, "    %s %s\n", dimColor.Sprint(SymbolPending), item)
}

// Header prints a section title.
func (p *Printer) Header(title string) {
	_, _ = fmt.Fprintln(p.w, headerColor.Sprint(title))
}

// Field prints an indented "label: value" pair.
func (p *Printer) Field(label string, value any) {
	_, _ = fmt.Fprintf(p.w, "  %s %v\n", labelColor.Sprint(label+":"), value)
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}
