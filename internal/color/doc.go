// Package color provides terminal color theming for e2ectl console output.
//
// Colors are organized into semantic categories rather than raw values:
//
//   - Success: passing phases and clean shutdowns
//   - Failure: failed phases and fatal errors
//   - Warning: skipped phases and tolerated cleanup problems
//   - Info: progress lines
//   - Muted: de-emphasized detail such as durations
//
// All styles use adaptive colors, so output remains readable on both dark
// and light terminal backgrounds once Initialize has been called. Lipgloss
// handles capability degradation (TrueColor, 256 colors, 16 colors, NO_COLOR)
// automatically.
package color
