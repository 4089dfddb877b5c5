package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const defaultHistory = 50

// Entry is one reported status line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Reporter prints a status line that overwrites the previous one and keeps
// a short history for the status API.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	last    string
	history []Entry
	max     int
	now     func() time.Time
}

// NewReporter writes status lines to out. A nil out only records history.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		out: out,
		max: defaultHistory,
		now: time.Now,
	}
}

// Update blanks the previously printed line and prints msg in its place.
func (r *Reporter) Update(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out != nil {
		fmt.Fprint(r.out, strings.Repeat(" ", len(r.last))+"\r")
		fmt.Fprint(r.out, msg+"\r")
	}
	r.last = msg

	r.history = append(r.history, Entry{Time: r.now(), Message: msg})
	if len(r.history) > r.max {
		r.history = r.history[len(r.history)-r.max:]
	}
}

// Last returns the most recent message.
func (r *Reporter) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// History returns a copy of the recorded entries, oldest first.
func (r *Reporter) History() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.history))
	copy(out, r.history)
	return out
}
