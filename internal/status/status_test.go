package status

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateOverwritesPreviousLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	r.Update("Added 12 item(s)")
	r.Update("Added 0 item(s)")

	want := "\rAdded 12 item(s)\r" + strings.Repeat(" ", len("Added 12 item(s)")) + "\rAdded 0 item(s)\r"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, "Added 0 item(s)", r.Last())
}

func TestHistoryIsBounded(t *testing.T) {
	r := NewReporter(nil)
	for i := 0; i < defaultHistory+5; i++ {
		r.Update(fmt.Sprintf("msg %d", i))
	}

	h := r.History()
	assert.Len(t, h, defaultHistory)
	assert.Equal(t, "msg 5", h[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", defaultHistory+4), h[len(h)-1].Message)

	// History returns a copy.
	h[0].Message = "changed"
	assert.Equal(t, "msg 5", r.History()[0].Message)
}
