package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

const DefaultOutboxSize = 32

type client struct {
	id     string
	userID string
	outbox chan arenadto.Event
}

// Router delivers events to connection outboxes. Sends never block: a full
// outbox means the client is too slow, so it is closed and dropped.
type Router struct {
	mu     sync.Mutex
	conns  map[string]*client
	byUser map[string]map[string]*client
	size   int
	log    *zap.Logger
	onDrop func(connID, userID string)
}

func NewRouter(outboxSize int, log *zap.Logger) *Router {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		conns:  make(map[string]*client),
		byUser: make(map[string]map[string]*client),
		size:   outboxSize,
		log:    log,
	}
}

// OnDrop registers a callback invoked when a slow connection is dropped.
func (r *Router) OnDrop(fn func(connID, userID string)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Attach registers a connection and returns its outbox. The outbox is closed on Detach or drop.
func (r *Router) Attach(connID, userID string) <-chan arenadto.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[connID]; ok {
		r.removeLocked(old)
	}
	c := &client{id: connID, userID: userID, outbox: make(chan arenadto.Event, r.size)}
	r.conns[connID] = c
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]*client)
		r.byUser[userID] = set
	}
	set[connID] = c
	return c.outbox
}

func (r *Router) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		r.removeLocked(c)
	}
}

func (r *Router) removeLocked(c *client) {
	delete(r.conns, c.id)
	if set, ok := r.byUser[c.userID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(r.byUser, c.userID)
		}
	}
	close(c.outbox)
}

func (r *Router) ToConn(connID string, ev arenadto.Event) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	var dropped []*client
	if ok && !r.sendLocked(c, ev) {
		dropped = append(dropped, c)
	}
	fn := r.onDrop
	r.mu.Unlock()
	r.report(fn, dropped)
}

func (r *Router) ToUser(userID string, ev arenadto.Event) {
	r.mu.Lock()
	var dropped []*client
	for _, c := range r.byUser[userID] {
		if !r.sendLocked(c, ev) {
			dropped = append(dropped, c)
		}
	}
	fn := r.onDrop
	r.mu.Unlock()
	r.report(fn, dropped)
}

func (r *Router) ToAll(ev arenadto.Event) {
	r.mu.Lock()
	var dropped []*client
	for _, c := range r.conns {
		if !r.sendLocked(c, ev) {
			dropped = append(dropped, c)
		}
	}
	fn := r.onDrop
	r.mu.Unlock()
	r.report(fn, dropped)
}

func (r *Router) sendLocked(c *client, ev arenadto.Event) bool {
	select {
	case c.outbox <- ev:
		return true
	default:
		r.removeLocked(c)
		return false
	}
}

func (r *Router) report(fn func(string, string), dropped []*client) {
	for _, c := range dropped {
		r.log.Warn("ws_client_dropped", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
		if fn != nil {
			fn(c.id, c.userID)
		}
	}
}

// Count returns the number of attached connections.
func (r *Router) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
