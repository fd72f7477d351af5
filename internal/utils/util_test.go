package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPrettyTime formats with an hour segment only when needed.
func TestPrettyTime(t *testing.T) {
	assert.Equal(t, "0:00", PrettyTime(0))
	assert.Equal(t, "0:59", PrettyTime(59))
	assert.Equal(t, "1:05", PrettyTime(65))
	assert.Equal(t, "59:59", PrettyTime(3599))
	assert.Equal(t, "1:00:00", PrettyTime(3600))
	assert.Equal(t, "2:03:04", PrettyTime(2*3600+3*60+4))
}

// TestParseDurationString accepts plain seconds and h/m/s shorthand.
func TestParseDurationString(t *testing.T) {
	assert.Equal(t, 90, ParseDurationString("90"))
	assert.Equal(t, 90, ParseDurationString("1m30s"))
	assert.Equal(t, 3720, ParseDurationString("1h2m"))
	assert.Equal(t, 5, ParseDurationString(" 5s "))
	assert.Equal(t, 0, ParseDurationString("banana"))
	assert.Equal(t, 0, ParseDurationString(""))
}

// TestEscapeMd escapes discord markdown control characters.
func TestEscapeMd(t *testing.T) {
	assert.Equal(t, "plain title", EscapeMd("plain title"))
	assert.Equal(t, "a \\* b \\_ c \\` d \\~", EscapeMd("a * b _ c ` d ~"))
}

// TestShuffleSlicePreservesElements only reorders, never loses.
func TestShuffleSlicePreservesElements(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got := make([]int, len(in))
	copy(got, in)
	ShuffleSlice(got)
	assert.ElementsMatch(t, in, got)
}
