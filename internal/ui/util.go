package ui

import "fmt"

// formatBytes renders a byte count with a binary-prefix unit.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatRate renders an already unit-converted rate with its unit label.
func formatRate(v float64, unit string) string {
	return fmt.Sprintf("%.2f %s", v, unit)
}

// bar renders a fixed-width usage bar scaled against refMax.
func bar(value, refMax float64, width int) string {
	if width <= 0 {
		return ""
	}
	if refMax <= 0 {
		refMax = 1
	}
	filled := int(value / refMax * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	out := make([]rune, width)
	for i := range out {
		if i < filled {
			out[i] = '█'
		} else {
			out[i] = '░'
		}
	}
	return string(out)
}
