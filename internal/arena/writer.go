package arena

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/store"
)

// stateWriter saves snapshots off the hub goroutine. It holds at most one
// unsent snapshot; a newer one replaces it, so saves stay ordered and the
// store always ends on the latest state.
type stateWriter struct {
	st      store.Store
	pending chan *store.State
	done    chan struct{}
	metrics *metrics.Metrics
	log     *zap.Logger

	closeOnce sync.Once
	closed    bool
}

func newStateWriter(st store.Store, m *metrics.Metrics, log *zap.Logger) *stateWriter {
	w := &stateWriter{
		st:      st,
		pending: make(chan *store.State, 1),
		done:    make(chan struct{}),
		metrics: m,
		log:     log,
	}
	go w.loop()
	return w
}

func (w *stateWriter) loop() {
	defer close(w.done)
	for snap := range w.pending {
		w.save(snap)
	}
}

func (w *stateWriter) save(snap *store.State) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := w.st.Save(ctx, snap); err != nil {
		w.metrics.StoreSaveFailed()
		w.log.Error("arena_store_save_failed", zap.Error(err))
	}
}

// submit never blocks. It must be called from a single goroutine.
func (w *stateWriter) submit(snap *store.State) {
	if w.closed {
		w.save(snap)
		return
	}
	for {
		select {
		case w.pending <- snap:
			return
		default:
		}
		select {
		case <-w.pending:
		default:
		}
	}
}

// close flushes the last snapshot and stops the writer.
func (w *stateWriter) close() {
	w.closeOnce.Do(func() {
		w.closed = true
		close(w.pending)
	})
	<-w.done
}
