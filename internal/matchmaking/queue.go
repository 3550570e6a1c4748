package matchmaking

// Queue is a FIFO of user ids waiting for a random opponent.
// Not safe for concurrent use.
type Queue struct {
	entries []string
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends userID unless it is already queued. Reports whether it was added.
func (q *Queue) Enqueue(userID string) bool {
	if userID == "" || q.Contains(userID) {
		return false
	}
	q.entries = append(q.entries, userID)
	return true
}

// Remove drops every occurrence of userID and reports whether any was found.
func (q *Queue) Remove(userID string) bool {
	kept := q.entries[:0]
	found := false
	for _, id := range q.entries {
		if id == userID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	q.entries = kept
	return found
}

func (q *Queue) Contains(userID string) bool {
	for _, id := range q.entries {
		if id == userID {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.entries) }

// NextPair runs one matching step. Ineligible heads are discarded; an eligible
// head without an eligible partner is put back and ok is false.
func (q *Queue) NextPair(eligible func(string) bool) (a, b string, ok bool) {
	for len(q.entries) >= 2 {
		head := q.entries[0]
		q.entries = q.entries[1:]
		if !eligible(head) {
			continue
		}
		for i, id := range q.entries {
			if id == head || !eligible(id) {
				continue
			}
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return head, id, true
		}
		q.entries = append([]string{head}, q.entries...)
		return "", "", false
	}
	return "", "", false
}

// Snapshot returns unique queued user ids in order.
func (q *Queue) Snapshot() []string {
	seen := make(map[string]struct{}, len(q.entries))
	out := make([]string, 0, len(q.entries))
	for _, id := range q.entries {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
