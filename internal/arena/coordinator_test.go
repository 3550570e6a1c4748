package arena

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/protocol"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type sent struct {
	scope string // user, conn or all
	to    string
	ev    arenadto.Event
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) add(s sent) { r.mu.Lock(); r.sent = append(r.sent, s); r.mu.Unlock() }

func (r *recorder) ToUser(userID string, ev arenadto.Event) { r.add(sent{"user", userID, ev}) }
func (r *recorder) ToConn(connID string, ev arenadto.Event) { r.add(sent{"conn", connID, ev}) }
func (r *recorder) ToAll(ev arenadto.Event)                 { r.add(sent{"all", "", ev}) }

func (r *recorder) to(to, typ string) []arenadto.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []arenadto.Event
	for _, s := range r.sent {
		if s.to == to && s.ev.Type == typ {
			out = append(out, s.ev)
		}
	}
	return out
}

func (r *recorder) reset() { r.mu.Lock(); r.sent = nil; r.mu.Unlock() }

type archived struct {
	mu  sync.Mutex
	ids []string
}

func (a *archived) SaveResult(_ context.Context, s *domain.Session, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, s.ID)
	return nil
}

type fixture struct {
	c   *Coordinator
	rec *recorder
	arc *archived
	ids map[string]string
}

func newFixture(t *testing.T, st store.Store, names ...string) *fixture {
	t.Helper()
	seq := 0
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cat, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat: %v", err) }
	f := &fixture{rec: &recorder{}, arc: &archived{}, ids: map[string]string{}}
	f.c, err = NewCoordinator(Deps{
		Store:    st,
		Archive:  f.arc,
		Notifier: f.rec,
		Messages: cat,
		Clock:    func() time.Time { clock = clock.Add(time.Second); return clock },
		Coin:     func() bool { return true },
		NewID:    func() string { seq++; return fmt.Sprintf("id-%d", seq) },
	})
	if err != nil { t.Fatalf("NewCoordinator: %v", err) }
	t.Cleanup(f.c.Close)
	if err := f.c.Restore(context.Background()); err != nil { t.Fatalf("Restore: %v", err) }
	for _, n := range names {
		u, err := f.c.UpsertIdentity(identity.DevIdentity(n))
		if err != nil { t.Fatalf("UpsertIdentity: %v", err) }
		f.ids[n] = u.ID
		f.c.Connect("conn-"+n, u.ID)
	}
	f.rec.reset()
	return f
}

func activeSessions(c *Coordinator) []*domain.Session {
	var out []*domain.Session
	for _, s := range c.games.Sessions() {
		if s.Status == domain.StatusActive {
			out = append(out, s)
		}
	}
	return out
}

func assertNoSharedParticipant(t *testing.T, c *Coordinator) {
	t.Helper()
	seen := map[string]string{}
	for _, s := range activeSessions(c) {
		for _, uid := range []string{s.WhiteID, s.BlackID} {
			if other, ok := seen[uid]; ok { t.Fatalf("user %s bound to %s and %s", uid, other, s.ID) }
			seen[uid] = s.ID
		}
	}
}

func codeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func TestQueuePairsTwoUsers(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	a, b := f.ids["alice"], f.ids["bob"]
	if err := f.c.JoinQueue(a); err != nil { t.Fatalf("JoinQueue a: %v", err) }
	if len(activeSessions(f.c)) != 0 || len(f.c.Waiting().Users) != 1 { t.Fatalf("single user must wait") }
	if err := f.c.JoinQueue(b); err != nil { t.Fatalf("JoinQueue b: %v", err) }

	sessions := activeSessions(f.c)
	if len(sessions) != 1 { t.Fatalf("expected exactly one session, got %d", len(sessions)) }
	s := sessions[0]
	if s.WhiteID != a || s.BlackID != b { t.Fatalf("coin should keep first queued user on white: %+v", s) }
	if len(f.c.Waiting().Users) != 0 { t.Fatalf("paired users must leave the queue") }
	mf := f.rec.to(b, arenadto.EventMatchFound)
	if len(mf) != 1 { t.Fatalf("expected one match-found for b, got %d", len(mf)) }
	if p := mf[0].Payload.(arenadto.MatchFound); p.Color != "black" || p.Opponent.ID != a || p.Origin != OriginQueue { t.Fatalf("match-found %+v", p) }
	if code := codeOf(f.c.JoinQueue(a)); code != CodeAlreadyInGame { t.Fatalf("in-game user queued, code=%q", code) }
}

func TestQueueSkipsOfflineUsers(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol")
	a, b, c := f.ids["alice"], f.ids["bob"], f.ids["carol"]
	_ = f.c.JoinQueue(a)
	f.c.Disconnect("conn-alice", a)
	if len(f.c.Waiting().Users) != 0 { t.Fatalf("offline user must leave the queue") }
	_ = f.c.JoinQueue(b)
	_ = f.c.JoinQueue(c)
	s := activeSessions(f.c)
	if len(s) != 1 || s[0].IsParticipant(a) { t.Fatalf("unexpected sessions %+v", s) }
}

func TestChallengeDeclineThenRechallenge(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	a, b := f.ids["alice"], f.ids["bob"]
	ch, err := f.c.CreateChallenge(a, b)
	if err != nil { t.Fatalf("CreateChallenge: %v", err) }
	if len(f.rec.to(b, arenadto.EventChallengeIncoming)) != 1 || len(f.rec.to(a, arenadto.EventChallengeCreated)) != 1 { t.Fatalf("challenge notifications missing") }
	if _, err := f.c.CreateChallenge(b, a); codeOf(err) != CodeChallengePending { t.Fatalf("reverse challenge should conflict, got %v", err) }
	if _, err := f.c.RespondChallenge(a, ch.ID, true); codeOf(err) != CodeForbidden { t.Fatalf("initiator answered own challenge: %v", err) }

	s, err := f.c.RespondChallenge(b, ch.ID, false)
	if err != nil || s != nil { t.Fatalf("decline: s=%v err=%v", s, err) }
	if len(activeSessions(f.c)) != 0 { t.Fatalf("decline must not start a session") }
	dec := f.rec.to(a, arenadto.EventChallengeDeclined)
	if len(dec) != 1 { t.Fatalf("initiator not notified") }
	if p := dec[0].Payload.(arenadto.ChallengeDeclined); p.By.ID != b || p.Message != "bob declined your challenge." { t.Fatalf("declined payload %+v", p) }
	if _, err := f.c.CreateChallenge(a, b); err != nil { t.Fatalf("re-challenge: %v", err) }
}

func TestChallengeValidation(t *testing.T) {
	f := newFixture(t, nil, "alice")
	a := f.ids["alice"]
	if _, err := f.c.CreateChallenge(a, a); codeOf(err) != CodeSelfChallenge { t.Fatalf("self challenge: %v", err) }
	if _, err := f.c.CreateChallenge(a, "ghost"); codeOf(err) != CodeUserNotFound { t.Fatalf("unknown target: %v", err) }
	if _, err := f.c.RespondChallenge(a, "missing", true); codeOf(err) != CodeChallengeNotFound { t.Fatalf("missing challenge: %v", err) }
}

func TestNoSharedParticipantAcrossQueueAndChallenges(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol")
	a, b, c := f.ids["alice"], f.ids["bob"], f.ids["carol"]
	ch, err := f.c.CreateChallenge(c, a)
	if err != nil { t.Fatalf("CreateChallenge: %v", err) }
	_ = f.c.JoinQueue(c)
	_ = f.c.JoinQueue(a)
	_ = f.c.JoinQueue(b)
	assertNoSharedParticipant(t, f.c)
	// c and a were paired by the queue, which cleared their challenge
	if _, err := f.c.RespondChallenge(a, ch.ID, true); codeOf(err) != CodeChallengeNotFound { t.Fatalf("stale challenge accepted: %v", err) }
	if _, err := f.c.CreateChallenge(b, a); codeOf(err) != CodeAlreadyInGame { t.Fatalf("challenge to busy user: %v", err) }
	assertNoSharedParticipant(t, f.c)
	if len(f.c.Waiting().Users) != 1 || f.c.Waiting().Users[0].ID != b { t.Fatalf("bob should still wait: %+v", f.c.Waiting()) }
}

func startDuel(t *testing.T, f *fixture) *domain.Session {
	t.Helper()
	ch, err := f.c.CreateChallenge(f.ids["alice"], f.ids["bob"])
	if err != nil { t.Fatalf("CreateChallenge: %v", err) }
	s, err := f.c.RespondChallenge(f.ids["bob"], ch.ID, true)
	if err != nil || s == nil { t.Fatalf("accept: %v", err) }
	f.rec.reset()
	return s
}

func TestDispatchMoveAndOutOfTurn(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	s := startDuel(t, f)
	a, b := f.ids["alice"], f.ids["bob"]

	if err := f.c.Dispatch("conn-bob", b, protocol.SubmitMove{SessionID: s.ID, From: "e7", To: "e5"}); codeOf(err) != CodeNotYourTurn { t.Fatalf("out of turn: %v", err) }
	if errs := f.rec.to("conn-bob", arenadto.EventError); len(errs) != 1 || errs[0].Payload.(arenadto.Error).Code != CodeNotYourTurn { t.Fatalf("error frame %+v", errs) }
	if len(f.rec.to("conn-bob", arenadto.EventSessionState)) != 1 { t.Fatalf("out-of-turn request must resync the caller") }
	if got, _ := f.c.games.Get(s.ID); len(got.Moves) != 0 { t.Fatalf("state changed on rejection") }

	f.rec.reset()
	if err := f.c.Dispatch("conn-alice", a, protocol.SubmitMove{SessionID: s.ID, From: "e2", To: "e4"}); err != nil { t.Fatalf("move: %v", err) }
	if len(f.rec.to(a, arenadto.EventMoveApplied)) != 1 || len(f.rec.to(b, arenadto.EventMoveApplied)) != 1 { t.Fatalf("move-applied not broadcast") }
	states := f.rec.to(b, arenadto.EventSessionState)
	if len(states) != 1 { t.Fatalf("expected a state for black") }
	if st := states[0].Payload.(arenadto.SessionState); st.Turn != "black" || len(st.LegalMoves) == 0 || len(st.Moves) != 1 { t.Fatalf("black view %+v", st) }
	if st := f.rec.to(a, arenadto.EventSessionState)[0].Payload.(arenadto.SessionState); len(st.LegalMoves) != 0 { t.Fatalf("white should see no legal moves") }

	f.rec.reset()
	if err := f.c.Dispatch("conn-bob", b, protocol.SubmitMove{SessionID: s.ID, From: "e7", To: "e4"}); codeOf(err) != CodeIllegalMove { t.Fatalf("illegal move: %v", err) }
	if len(f.rec.to("conn-bob", arenadto.EventSessionState)) != 1 { t.Fatalf("illegal move must resync the caller") }
}

func TestDrawAndResignThroughCoordinator(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	s := startDuel(t, f)
	a, b := f.ids["alice"], f.ids["bob"]

	if err := f.c.OfferDraw(a, s.ID); err != nil { t.Fatalf("OfferDraw: %v", err) }
	if err := f.c.OfferDraw(a, s.ID); err != nil { t.Fatalf("repeat OfferDraw: %v", err) }
	if n := len(f.rec.to(b, arenadto.EventDrawOffered)); n != 1 { t.Fatalf("expected one draw-offered, got %d", n) }
	if err := f.c.OfferDraw(b, s.ID); codeOf(err) != CodeDrawOfferPending { t.Fatalf("counter offer: %v", err) }
	if err := f.c.RespondDraw(b, s.ID, true); err != nil { t.Fatalf("RespondDraw: %v", err) }

	fin := f.rec.to(a, arenadto.EventSessionFinished)
	if len(fin) != 1 { t.Fatalf("session-finished missing") }
	if p := fin[0].Payload.(arenadto.SessionFinished); p.Result != domain.ResultDraw || p.FinishReason != string(domain.ReasonDrawAgreed) || p.Outcome != "draw" { t.Fatalf("finished payload %+v", p) }
	if st := f.c.games.StatsOf(a); st.Draws != 1 || st.Points != 1 { t.Fatalf("stats %+v", st) }
	if err := f.c.Resign(a, s.ID); codeOf(err) != CodeSessionNotActive { t.Fatalf("resign finished session: %v", err) }
	f.c.Wait()
	if len(f.arc.ids) != 1 || f.arc.ids[0] != s.ID { t.Fatalf("archive calls %v", f.arc.ids) }
}

func TestRematchSpawnsOnceWithSwappedColors(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	s := startDuel(t, f)
	a, b := f.ids["alice"], f.ids["bob"]
	if err := f.c.Resign(b, s.ID); err != nil { t.Fatalf("Resign: %v", err) }
	if st := f.c.games.StatsOf(s.PlayerOf(domain.White)); st.Wins+st.Losses != 1 { t.Fatalf("stats not applied: %+v", st) }

	if err := f.c.OfferRematch(a, s.ID); err != nil { t.Fatalf("OfferRematch a: %v", err) }
	if len(f.rec.to(b, arenadto.EventRematchOffered)) != 1 { t.Fatalf("rematch-offered missing") }
	if err := f.c.OfferRematch(b, s.ID); err != nil { t.Fatalf("OfferRematch b: %v", err) }
	if err := f.c.OfferRematch(a, s.ID); err != nil { t.Fatalf("late OfferRematch: %v", err) }

	acc := f.rec.to(a, arenadto.EventRematchAccepted)
	if len(acc) != 1 { t.Fatalf("expected one rematch-accepted, got %d", len(acc)) }
	p := acc[0].Payload.(arenadto.RematchAccepted)
	next, ok := f.c.games.Get(p.NewSessionID)
	if !ok || next.WhiteID != s.BlackID || next.BlackID != s.WhiteID || next.RematchOf != s.ID { t.Fatalf("rematch session %+v", next) }
	if len(activeSessions(f.c)) != 1 { t.Fatalf("rematch spawned more than once") }
}

func TestRestoreRebuildsActiveIndex(t *testing.T) {
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "arena.json"))
	if err != nil { t.Fatalf("NewFileStore: %v", err) }
	f := newFixture(t, st, "alice", "bob")
	s := startDuel(t, f)
	if err := f.c.SubmitMove(f.ids["alice"], s.ID, "d2", "d4", ""); err != nil { t.Fatalf("SubmitMove: %v", err) }
	f.c.Close()

	g := newFixture(t, st)
	if code := codeOf(g.c.JoinQueue(f.ids["alice"])); code != CodeAlreadyInGame { t.Fatalf("active index not rebuilt, code=%q", code) }
	got, ok := g.c.games.Get(s.ID)
	if !ok || len(got.Moves) != 1 || got.Moves[0].UCI != "d2d4" { t.Fatalf("restored session %+v", got) }
	if u, ok := g.c.User(f.ids["bob"]); !ok || u.DisplayName != "bob" { t.Fatalf("restored user %+v", u) }
	me, err := g.c.Me(f.ids["bob"])
	if err != nil || me.Session != s.ID || me.Status != "in_game" { t.Fatalf("me=%+v err=%v", me, err) }
}

func TestConnectResyncsActiveSessionAndChallenges(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob", "carol")
	s := startDuel(t, f)
	if _, err := f.c.CreateChallenge(f.ids["carol"], f.ids["bob"]); codeOf(err) != CodeAlreadyInGame { t.Fatalf("challenge to busy user: %v", err) }
	f.c.Connect("conn-alice-2", f.ids["alice"])
	states := f.rec.to("conn-alice-2", arenadto.EventSessionState)
	if len(states) != 1 || states[0].Payload.(arenadto.SessionState).SessionID != s.ID { t.Fatalf("reconnect did not resync the session") }
	if len(f.rec.to("conn-alice-2", arenadto.EventQueueSnapshot)) != 1 || len(f.rec.to("conn-alice-2", arenadto.EventPresenceSnapshot)) != 1 { t.Fatalf("lobby snapshots missing") }
	f.c.Disconnect("conn-alice-2", f.ids["alice"])
	if !f.c.presence.IsOnline(f.ids["alice"]) { t.Fatalf("closing one of two connections took the user offline") }
}

func TestHistoryAndBoards(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	s := startDuel(t, f)
	_ = f.c.Resign(f.ids["bob"], s.ID)
	h := f.c.History(f.ids["alice"])
	if len(h) != 1 || h[0].Outcome != "win" || h[0].Opponent.ID != f.ids["bob"] { t.Fatalf("history %+v", h) }
	if g := f.c.GlobalBoard(); len(g.Rows) != 2 || g.Rows[0].UserID != f.ids["alice"] { t.Fatalf("global %+v", g) }
	w := f.c.DailyWinner("2025-03-01")
	if w.Winner == nil || w.Winner.UserID != f.ids["alice"] { t.Fatalf("daily winner %+v", w) }
	if w := f.c.DailyWinner("2025-02-01"); w.Winner != nil { t.Fatalf("empty day has a winner") }
	if _, err := f.c.SessionFor("outsider", s.ID); codeOf(err) != CodeForbidden { t.Fatalf("outsider view: %v", err) }
}

func TestHubSerialisesCalls(t *testing.T) {
	f := newFixture(t, nil, "alice", "bob")
	h := NewHub(context.Background(), f.c, time.Hour, nil)
	var wg sync.WaitGroup
	for _, n := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = h.Do(context.Background(), func(c *Coordinator) { _ = c.JoinQueue(id) })
		}(f.ids[n])
	}
	wg.Wait()
	n, err := Call(context.Background(), h, func(c *Coordinator) (int, error) { return len(activeSessions(c)), nil })
	if err != nil || n != 1 { t.Fatalf("sessions=%d err=%v", n, err) }
	h.Close()
	if err := h.Do(context.Background(), func(*Coordinator) {}); !errors.Is(err, ErrHubClosed) { t.Fatalf("expected ErrHubClosed, got %v", err) }
}

// gatedStore blocks every Save until release is closed.
type gatedStore struct {
	release chan struct{}
	mu      sync.Mutex
	saves   []*store.State
}

func (g *gatedStore) Load(context.Context) (*store.State, error) { return store.Empty(), nil }

func (g *gatedStore) Save(_ context.Context, st *store.State) error {
	<-g.release
	g.mu.Lock()
	g.saves = append(g.saves, st)
	g.mu.Unlock()
	return nil
}

func (g *gatedStore) Close() error { return nil }

func TestSlowStoreDoesNotBlockHub(t *testing.T) {
	gs := &gatedStore{release: make(chan struct{})}
	c, err := NewCoordinator(Deps{Store: gs, Coin: func() bool { return true }})
	if err != nil { t.Fatalf("NewCoordinator: %v", err) }
	h := NewHub(context.Background(), c, time.Hour, nil)

	for _, n := range []string{"alice", "bob", "carol"} {
		name := n
		if _, err := Call(context.Background(), h, func(c *Coordinator) (domain.User, error) { return c.UpsertIdentity(identity.DevIdentity(name)) }); err != nil { t.Fatalf("UpsertIdentity %s: %v", name, err) }
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	board, err := Call(ctx, h, func(c *Coordinator) (arenadto.Leaderboard, error) { return c.GlobalBoard(), nil })
	if err != nil { t.Fatalf("query waited behind a pending save: %v", err) }
	if len(board.Rows) != 3 { t.Fatalf("board %+v", board.Rows) }

	close(gs.release)
	h.Close()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	// the first save is in flight; the next two collapse into the latest snapshot
	if len(gs.saves) == 0 || len(gs.saves) > 2 { t.Fatalf("saves=%d", len(gs.saves)) }
	if last := gs.saves[len(gs.saves)-1]; len(last.Users) != 3 { t.Fatalf("last snapshot has %d users", len(last.Users)) }
}
