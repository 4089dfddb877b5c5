package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelsAndFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Debug("hidden", "k", "v")
	assert.Empty(t, buf.String())

	Error("error processing event", errors.New("boom"), "uid", "abc", "raw", "BEGIN:VEVENT\nUID:abc")
	line := buf.String()
	assert.Contains(t, line, "[ERROR] error processing event err=boom uid=abc")
	assert.Contains(t, line, `raw="BEGIN:VEVENT\nUID:abc"`)

	buf.Reset()
	SetLevel(LevelError)
	Info("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
