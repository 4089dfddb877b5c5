package ics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// calendar builds an iCalendar document from unfolded lines.
func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//awical//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func vevent(props ...string) []string {
	out := append([]string{"BEGIN:VEVENT"}, props...)
	return append(out, "END:VEVENT")
}

func mustParse(t *testing.T, body []byte) Document {
	t.Helper()
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	return doc
}
