package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// DefaultTermWidth is the fallback terminal width when detection fails.
const DefaultTermWidth = 120

// DisplayContext holds display parameters for rendering tables.
type DisplayContext struct {
	TermWidth int  // detected, $COLUMNS or fallback terminal width
	IsTTY     bool // whether stdout is a terminal
}

// NewDisplayContext creates a DisplayContext for stdout. $COLUMNS overrides
// the detected terminal width.
func NewDisplayContext() *DisplayContext {
	fd := os.Stdout.Fd()
	isTTY := term.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)

	return &DisplayContext{
		TermWidth: termWidth(os.Getenv("COLUMNS"), isTTY, func() (int, error) {
			w, _, err := term.GetSize(fd)
			return w, err
		}),
		IsTTY: isTTY,
	}
}

func termWidth(columns string, isTTY bool, size func() (int, error)) int {
	if cols, err := strconv.Atoi(strings.TrimSpace(columns)); err == nil && cols > 0 {
		return cols
	}
	if isTTY {
		if w, err := size(); err == nil && w > 0 {
			return w
		}
	}
	return DefaultTermWidth
}

// NewDisplayContextWithWidth creates a DisplayContext with a fixed width (for testing).
func NewDisplayContextWithWidth(width int) *DisplayContext {
	return &DisplayContext{
		TermWidth: width,
		IsTTY:     true,
	}
}

// AvailableWidth returns the usable width after accounting for left margin.
func (d *DisplayContext) AvailableWidth(leftMargin int) int {
	return d.TermWidth - leftMargin
}

// ColorEnabled reports whether styled output should be used.
func (d *DisplayContext) ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return d.IsTTY
}
