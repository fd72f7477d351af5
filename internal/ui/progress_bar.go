package ui

import "strings"

// ProgressBar renders a fixed-width track bar with a knob at the played
// fraction, e.g. ▬▬🔘▬▬▬▬▬▬▬.
func ProgressBar(width int, played float64) string {
	if width <= 0 {
		return ""
	}
	knob := int(float64(width) * played)
	switch {
	case knob < 0:
		knob = 0
	case knob >= width:
		knob = width - 1
	}
	var b strings.Builder
	b.WriteString(strings.Repeat("▬", knob))
	b.WriteString("🔘")
	b.WriteString(strings.Repeat("▬", width-knob-1))
	return b.String()
}
