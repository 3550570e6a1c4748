package game

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	return NewManager(rules.NewChess(),
		WithClock(func() time.Time { now = now.Add(time.Second); return now }),
		WithIDs(func() string { seq++; return fmt.Sprintf("s%d", seq) }),
	)
}

func mustMove(t *testing.T, m *Manager, id, user, uci string) *Outcome {
	t.Helper()
	out, err := m.Move(id, user, uci[0:2], uci[2:4], uci[4:])
	if err != nil { t.Fatalf("Move %s by %s: %v", uci, user, err) }
	return out
}

func TestFirstMoveFlipsTurnAndLegalMoves(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Start("w", "b", "")
	if err != nil { t.Fatalf("Start: %v", err) }

	wv := m.View(s, "w", nil)
	if len(wv.LegalMoves) == 0 || wv.Turn != "white" { t.Fatalf("white should have legal moves at start: %+v", wv.Turn) }
	if bv := m.View(s, "b", nil); len(bv.LegalMoves) != 0 { t.Fatalf("black must not see legal moves at start") }

	out := mustMove(t, m, s.ID, "w", "e2e4")
	if out.Move.No != 1 || out.Move.SAN != "e4" || out.Move.Side != domain.White { t.Fatalf("unexpected move %+v", out.Move) }
	s = out.Session
	if len(s.Moves) != 1 { t.Fatalf("expected 1 move, got %d", len(s.Moves)) }
	if v := m.View(s, "w", nil); len(v.LegalMoves) != 0 || v.Turn != "black" { t.Fatalf("white view after move: turn=%s legal=%d", v.Turn, len(v.LegalMoves)) }
	if v := m.View(s, "b", nil); len(v.LegalMoves) == 0 { t.Fatalf("black should have legal moves") }
	if v := m.View(s, "spectator", nil); v.ViewerColor != "" || len(v.LegalMoves) != 0 { t.Fatalf("spectator view leaked: %+v", v.ViewerColor) }
}

func TestMoveRejectionsLeaveStateUntouched(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")

	if _, err := m.Move(s.ID, "b", "e7", "e5", ""); !errors.Is(err, ErrNotYourTurn) { t.Fatalf("out of turn: %v", err) }
	if _, err := m.Move(s.ID, "w", "e2", "e5", ""); !errors.Is(err, ErrIllegalMove) { t.Fatalf("illegal: %v", err) }
	if _, err := m.Move(s.ID, "w", "x", "e4", ""); !errors.Is(err, ErrBadMove) { t.Fatalf("malformed: %v", err) }
	if _, err := m.Move(s.ID, "intruder", "e2", "e4", ""); !errors.Is(err, ErrNotParticipant) { t.Fatalf("intruder: %v", err) }
	if _, err := m.Move("missing", "w", "e2", "e4", ""); !errors.Is(err, ErrNotFound) { t.Fatalf("missing: %v", err) }

	cur, _ := m.Get(s.ID)
	if len(cur.Moves) != 0 || cur.Position != s.Position { t.Fatalf("state mutated: %+v", cur) }
}

func TestFoolsMateFinishesSession(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")
	mustMove(t, m, s.ID, "w", "f2f3")
	mustMove(t, m, s.ID, "b", "e7e5")
	mustMove(t, m, s.ID, "w", "g2g4")
	out := mustMove(t, m, s.ID, "b", "d8h4")
	if !out.Finished { t.Fatalf("expected finish on checkmate") }
	fs := out.Session
	if fs.Status != domain.StatusFinished || fs.Result != domain.ResultBlackWon || fs.FinishReason != domain.ReasonCheckmate {
		t.Fatalf("unexpected finish %s %s %s", fs.Status, fs.Result, fs.FinishReason)
	}
	if m.InGame("w") || m.InGame("b") { t.Fatalf("participants should be freed") }
	if st := m.StatsOf("b"); st.Wins != 1 || st.Points != 3 { t.Fatalf("black stats %+v", st) }
	if st := m.StatsOf("w"); st.Losses != 1 || st.Points != 0 || st.GamesTotal != 1 { t.Fatalf("white stats %+v", st) }
	pgn := BuildPGN(fs, "W", "B")
	if !strings.Contains(pgn, "1. f3 e5 2. g4 Qh4") || !strings.HasSuffix(pgn, "0-1") || !strings.Contains(pgn, `[Termination "checkmate"]`) {
		t.Fatalf("pgn: %s", pgn)
	}
}

func TestDrawOfferFlow(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")

	if _, err := m.RespondDraw(s.ID, "b", true); !errors.Is(err, ErrNoDrawOffer) { t.Fatalf("respond without offer: %v", err) }
	out, err := m.OfferDraw(s.ID, "w")
	if err != nil || !out.Changed { t.Fatalf("OfferDraw: %v changed=%v", err, out.Changed) }
	again, err := m.OfferDraw(s.ID, "w")
	if err != nil || again.Changed || again.Session.DrawOfferBy != "w" { t.Fatalf("second offer should be a no-op: %v", err) }
	if _, err := m.OfferDraw(s.ID, "b"); !errors.Is(err, ErrDrawOfferPending) { t.Fatalf("counter offer: %v", err) }
	if _, err := m.RespondDraw(s.ID, "w", true); !errors.Is(err, ErrNoDrawOffer) { t.Fatalf("own offer: %v", err) }

	v := m.View(out.Session, "b", nil)
	if v.DrawOffer != arenadto.MarkOpponent { t.Fatalf("black should see opponent offer, got %q", v.DrawOffer) }
	if v := m.View(out.Session, "w", nil); v.DrawOffer != arenadto.MarkSelf { t.Fatalf("white should see own offer, got %q", v.DrawOffer) }

	res, err := m.RespondDraw(s.ID, "b", true)
	if err != nil || !res.Finished { t.Fatalf("accept: %v", err) }
	if res.Session.Result != domain.ResultDraw || res.Session.FinishReason != domain.ReasonDrawAgreed || res.Session.DrawOfferBy != "" {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	for _, u := range []string{"w", "b"} {
		if st := m.StatsOf(u); st.Draws != 1 || st.Points != 1 { t.Fatalf("%s stats %+v", u, st) }
	}
}

func TestDrawDeclineAndMoveClearOffer(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")
	m.OfferDraw(s.ID, "w")
	out, err := m.RespondDraw(s.ID, "b", false)
	if err != nil || out.Finished || out.Session.DrawOfferBy != "" { t.Fatalf("decline: %v %+v", err, out) }

	m.OfferDraw(s.ID, "w")
	mv := mustMove(t, m, s.ID, "w", "e2e4")
	if mv.Session.DrawOfferBy != "" { t.Fatalf("move should clear pending draw offer") }
}

func TestResignAndDoubleFinish(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")
	out, err := m.Resign(s.ID, "w")
	if err != nil || !out.Finished { t.Fatalf("Resign: %v", err) }
	if out.Session.Result != domain.ResultBlackWon || out.Session.FinishReason != domain.ReasonResignation { t.Fatalf("unexpected %+v", out.Session) }
	if st := m.StatsOf("b"); st.Wins != 1 || st.Points != 3 { t.Fatalf("winner stats %+v", st) }

	again, err := m.Finish(s.ID, domain.ResultWhiteWon, domain.ReasonCheckmate)
	if err != nil || again.Changed { t.Fatalf("second finish must be a no-op: %v", err) }
	if again.Session.Result != domain.ResultBlackWon { t.Fatalf("result overwritten: %s", again.Session.Result) }
	if st := m.StatsOf("b"); st.Wins != 1 || st.GamesTotal != 1 { t.Fatalf("stats double applied %+v", st) }
	if st := m.StatsOf("w"); st.Losses != 1 || st.Wins != 0 { t.Fatalf("stats double applied %+v", st) }
	if _, err := m.Resign(s.ID, "b"); !errors.Is(err, ErrNotActive) { t.Fatalf("resign finished: %v", err) }
}

func TestRematchSpawnsOnceWithSwappedColors(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")
	if _, err := m.OfferRematch(s.ID, "w"); !errors.Is(err, ErrNotFinished) { t.Fatalf("rematch on active: %v", err) }
	m.Resign(s.ID, "b")

	first, err := m.OfferRematch(s.ID, "w")
	if err != nil || first.Rematch != nil || !first.Changed { t.Fatalf("first consent: %v %+v", err, first) }
	if v := m.View(first.Session, "b", nil); len(v.Rematch) != 1 || v.Rematch[0] != arenadto.MarkOpponent { t.Fatalf("rematch marks %v", v.Rematch) }
	dup, _ := m.OfferRematch(s.ID, "w")
	if dup.Changed { t.Fatalf("repeated consent should be idempotent") }

	second, err := m.OfferRematch(s.ID, "b")
	if err != nil || second.Rematch == nil { t.Fatalf("second consent: %v", err) }
	ns := second.Rematch
	if ns.WhiteID != "b" || ns.BlackID != "w" || ns.RematchOf != s.ID { t.Fatalf("unexpected rematch %+v", ns) }
	if second.Session.RematchID != ns.ID { t.Fatalf("old session should link rematch") }

	third, err := m.OfferRematch(s.ID, "b")
	if err != nil || third.Rematch != nil { t.Fatalf("further offers must not spawn: %v", err) }
	active := 0
	for _, x := range m.Sessions() {
		if x.Status == domain.StatusActive { active++ }
	}
	if active != 1 { t.Fatalf("expected exactly one active session, got %d", active) }
}

func TestRematchRejectedWhenBusy(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Start("w", "b", "")
	m.Resign(s.ID, "w")
	if _, err := m.Start("w", "c", ""); err != nil { t.Fatalf("Start other: %v", err) }
	m.OfferRematch(s.ID, "b")
	if _, err := m.OfferRematch(s.ID, "w"); !errors.Is(err, ErrParticipantBusy) { t.Fatalf("expected busy, got %v", err) }
}

func TestLoadRebuildsActiveIndex(t *testing.T) {
	m := newTestManager(t)
	s1, _ := m.Start("a", "b", "")
	s2, _ := m.Start("c", "d", "")
	m.Resign(s2.ID, "c")

	reloaded := newTestManager(t)
	reloaded.Load(m.Sessions(), m.AllStats())
	if got, ok := reloaded.ActiveFor("a"); !ok || got.ID != s1.ID { t.Fatalf("a should be bound to %s", s1.ID) }
	if reloaded.InGame("c") || reloaded.InGame("d") { t.Fatalf("finished session must not bind users") }
	if st := reloaded.StatsOf("d"); st.Wins != 1 { t.Fatalf("stats not restored %+v", st) }
	if _, err := reloaded.Start("a", "c", ""); !errors.Is(err, ErrParticipantBusy) { t.Fatalf("busy after reload: %v", err) }
}

func TestPerspectiveOutcome(t *testing.T) {
	s := &domain.Session{WhiteID: "w", BlackID: "b", Result: domain.ResultWhiteWon}
	if PerspectiveOutcome(s, "w") != "win" || PerspectiveOutcome(s, "b") != "loss" { t.Fatalf("white won perspective") }
	s.Result = domain.ResultDraw
	if PerspectiveOutcome(s, "b") != "draw" { t.Fatalf("draw perspective") }
	s.Result = domain.ResultOngoing
	if PerspectiveOutcome(s, "w") != "ongoing" { t.Fatalf("ongoing perspective") }
}
