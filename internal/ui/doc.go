// Package ui provides the terminal presentation layer: the shared lipgloss
// style palette, and the Bubble Tea live dashboard used by the scan role
// when stdout is an interactive terminal.
//
// Commands that only print once (summaries, exports) use the styles
// directly; the dashboard is reserved for long-running scans where the
// latest correlated frame is worth watching in place.
package ui
