package ics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggedSet(t *testing.T) {
	uidList := []string{"a", "b+20240101T090000"}
	s := NewLoggedSet(uidList...)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Keep("a"))
	assert.True(t, s.Keep("b"))
	assert.False(t, s.Keep("b+20240101T090000"))

	// The snapshot does not alias the caller's slice.
	uidList[0] = "z"
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))
}

func TestLoggedSetZeroValue(t *testing.T) {
	var s LoggedSet
	assert.True(t, s.Keep("anything"))
	assert.Equal(t, 0, s.Len())
}
