package arena

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("arena hub closed")

const (
	inboxSize         = 64
	DefaultSweepEvery = 10 * time.Second
)

type command struct {
	fn   func(*Coordinator)
	done chan struct{}
}

// Hub is the single goroutine that owns the Coordinator. Every read and write
// goes through its inbox.
type Hub struct {
	c       *Coordinator
	inbox   chan command
	sweep   time.Duration
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewHub(parent context.Context, c *Coordinator, sweepEvery time.Duration, log *zap.Logger) *Hub {
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepEvery
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		c:       c,
		inbox:   make(chan command, inboxSize),
		sweep:   sweepEvery,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.stopped)
	ticker := time.NewTicker(h.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.c.SweepChallenges()
		case cmd := <-h.inbox:
			h.run(cmd)
		}
	}
}

func (h *Hub) run(cmd command) {
	defer close(cmd.done)
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("arena_hub_panic", zap.Any("panic", r))
		}
	}()
	cmd.fn(h.c)
}

// Do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) Do(ctx context.Context, fn func(*Coordinator)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case h.inbox <- cmd:
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-h.stopped:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the hub and returns its results.
func Call[T any](ctx context.Context, h *Hub, fn func(*Coordinator) (T, error)) (T, error) {
	var (
		out  T
		ferr error
	)
	if err := h.Do(ctx, func(c *Coordinator) { out, ferr = fn(c) }); err != nil {
		var zero T
		return zero, err
	}
	return out, ferr
}

// Close stops the loop, flushes the last state save and waits for archive writes.
func (h *Hub) Close() {
	h.cancel()
	<-h.stopped
	h.c.Close()
}
