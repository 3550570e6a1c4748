package broadcast

import (
	"testing"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

func recv(t *testing.T, ch <-chan arenadto.Event) arenadto.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok { t.Fatalf("outbox closed unexpectedly") }
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return arenadto.Event{}
	}
}

func TestTargetedDelivery(t *testing.T) {
	r := NewRouter(4, nil)
	a1 := r.Attach("c1", "a")
	a2 := r.Attach("c2", "a")
	b := r.Attach("c3", "b")

	r.ToUser("a", arenadto.Event{Type: "x"})
	if recv(t, a1).Type != "x" || recv(t, a2).Type != "x" { t.Fatalf("both of a's connections should receive") }
	select {
	case ev := <-b:
		t.Fatalf("b received %v", ev)
	default:
	}

	r.ToConn("c3", arenadto.Event{Type: "only-b"})
	if recv(t, b).Type != "only-b" { t.Fatalf("conn delivery") }

	r.ToAll(arenadto.Event{Type: "all"})
	for _, ch := range []<-chan arenadto.Event{a1, a2, b} {
		if recv(t, ch).Type != "all" { t.Fatalf("broadcast") }
	}
}

func TestSlowClientDropped(t *testing.T) {
	r := NewRouter(1, nil)
	var dropped string
	r.OnDrop(func(connID, userID string) { dropped = connID })
	slow := r.Attach("slow", "u")
	fast := r.Attach("fast", "v")

	r.ToAll(arenadto.Event{Type: "1"})
	recv(t, fast)
	r.ToAll(arenadto.Event{Type: "2"})

	if dropped != "slow" { t.Fatalf("expected slow to be dropped, got %q", dropped) }
	if r.Count() != 1 { t.Fatalf("count=%d", r.Count()) }
	recv(t, slow) // buffered first event is still readable
	if _, ok := <-slow; ok { t.Fatalf("slow outbox should be closed") }
	if recv(t, fast).Type != "2" { t.Fatalf("fast client should keep receiving") }
}

func TestDetachClosesOutbox(t *testing.T) {
	r := NewRouter(0, nil)
	ch := r.Attach("c", "u")
	r.Detach("c")
	r.Detach("c")
	if _, ok := <-ch; ok { t.Fatalf("expected closed outbox") }
	r.ToUser("u", arenadto.Event{Type: "late"})
}
