package utils

// Truncate shortens s to maxLen runes and appends "..." when it had to cut.
func Truncate(s string, maxLen int) string {
	clipped := Clip(s, maxLen)
	if len(clipped) == len(s) {
		return s
	}
	return clipped + "..."
}

// Clip shortens s to at most maxLen runes without marking the cut.
func Clip(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}
