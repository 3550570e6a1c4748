package presence

import "sort"

// Status is a user's derived presence.
type Status string

const (
	Offline Status = "offline"
	Online  Status = "online"
	InQueue Status = "in_queue"
	InGame  Status = "in_game"
)

// Registry tracks live connections per user. It is not safe for concurrent use;
// the arena hub owns it.
type Registry struct {
	conns map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]struct{})}
}

// Register adds connID for userID and reports whether the user just came online.
func (r *Registry) Register(userID, connID string) bool {
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Unregister removes connID and reports whether it was the user's last connection.
func (r *Registry) Unregister(userID, connID string) bool {
	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	return len(r.conns[userID]) > 0
}

// Connections returns the live connection ids for userID, sorted.
func (r *Registry) Connections(userID string) []string {
	out := make([]string, 0, len(r.conns[userID]))
	for id := range r.conns[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Online lists online user ids, sorted.
func (r *Registry) Online() []string {
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Status resolves presence with priority in_game > in_queue > online > offline.
func (r *Registry) Status(userID string, inGame, inQueue func(string) bool) Status {
	switch {
	case inGame != nil && inGame(userID):
		return InGame
	case inQueue != nil && inQueue(userID):
		return InQueue
	case r.IsOnline(userID):
		return Online
	}
	return Offline
}
