// Package ui provides terminal rendering for the ssdpd CLI.
//
// Components follow a "run once and exit" pattern: they render styled output
// with Lipgloss but never take input.
//
//   - Header: command banner with the search parameters
//   - Result: success, failure or warning box
//   - RenderDevices: discovered devices, styled or tab-separated
//
// Callers check IsTerminal and fall back to plain output when stdout is
// redirected.
package ui
