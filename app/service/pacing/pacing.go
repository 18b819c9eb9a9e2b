package pacing

import "strings"

const (
	MillisPerWord = 60
	MinDelay      = 800
	MaxDelay      = 3000
)

// DelayMillis approximates a typing cadence: 60ms per word clamped to [800, 3000].
func DelayMillis(text string) int {
	return min(MaxDelay, max(MinDelay, WordCount(text)*MillisPerWord))
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
