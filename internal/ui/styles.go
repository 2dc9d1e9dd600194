// Package ui renders comments for the threads CLI.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorID     = 74  // blue
	colorAuthor = 150 // green
	colorMuted  = 245 // medium gray
	colorWarn   = 173 // orange
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderID returns a comment ID in the accent color.
func RenderID(s string) string { return paint(colorID, s) }

// RenderAuthor returns an author ID in the author color.
func RenderAuthor(s string) string { return paint(colorAuthor, s) }

// RenderMuted returns s in gray, used for bounds and timestamps.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderWarn returns s in the warning color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
