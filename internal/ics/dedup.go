package ics

// LoggedSet is an immutable snapshot of the UIDs already recorded in a
// destination bucket. It is taken once per document and never updated
// while that document is processed.
type LoggedSet struct {
	uids map[string]struct{}
}

// NewLoggedSet copies uids into a new snapshot.
func NewLoggedSet(uids ...string) LoggedSet {
	m := make(map[string]struct{}, len(uids))
	for _, u := range uids {
		m[u] = struct{}{}
	}
	return LoggedSet{uids: m}
}

// Contains reports whether uid was already recorded.
func (s LoggedSet) Contains(uid string) bool {
	_, ok := s.uids[uid]
	return ok
}

// Keep is the dedup predicate: true when a record with uid should be emitted.
func (s LoggedSet) Keep(uid string) bool {
	return !s.Contains(uid)
}

func (s LoggedSet) Len() int {
	return len(s.uids)
}
