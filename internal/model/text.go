package model

// Offsets into document text are counted in runes, not bytes.

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// ClampOffset limits offset to [0, RuneLen(s)].
func ClampOffset(s string, offset int) int {
	if offset < 0 {
		return 0
	}
	if n := RuneLen(s); offset > n {
		return n
	}
	return offset
}

// InsertAt returns s with insert placed at the rune offset, clamped to the text.
func InsertAt(s string, offset int, insert string) string {
	runes := []rune(s)
	offset = ClampOffset(s, offset)
	return string(runes[:offset]) + insert + string(runes[offset:])
}
