// Package viz renders cable robot queries in the terminal.
//
//   - [Styles]: lipgloss styles derived from a [Theme], cable tables and status words
//   - [TensionChart]: asciigraph plot of per-cable values
//   - [Canvas] and [Camera]: Braille rendering of 3D cable polylines
//   - [Explorer]: a Bubble Tea model that jogs the platform pose
//
// # Key Bindings
//
//	←→↑↓   - Move in x and y
//	W/S    - Move in z
//	[ ] { }- Yaw and roll
//	+/-    - Change the jog step
//	HJKL   - Orbit the camera, Z/X zoom
//	T      - Cycle color themes
//	?      - Show help overlay
//
// Each move issues one independent query; answers to superseded moves are
// discarded.
package viz
