package game

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rules"
)

var (
	ErrInvalidArgs      = errors.New("invalid arguments")
	ErrNotFound         = errors.New("session not found")
	ErrNotParticipant   = errors.New("user is not a participant")
	ErrNotActive        = errors.New("session is not active")
	ErrNotFinished      = errors.New("session is not finished")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrBadMove          = errors.New("malformed move")
	ErrIllegalMove      = errors.New("illegal move")
	ErrDrawOfferPending = errors.New("opponent draw offer pending")
	ErrNoDrawOffer      = errors.New("no draw offer to answer")
	ErrParticipantBusy  = errors.New("participant already in an active session")
)

// Outcome is the result of a committed transition.
type Outcome struct {
	Session  *domain.Session
	Move     *domain.Move
	Changed  bool
	Finished bool
	// Rematch is set when a rematch session was spawned by this call.
	Rematch *domain.Session
}

// Manager owns sessions, the active-session index and per-user stats.
// Not safe for concurrent use.
type Manager struct {
	engine   rules.Engine
	sessions map[string]*domain.Session
	active   map[string]string
	stats    map[string]*domain.Stats

	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithIDs(newID func() string) Option { return func(m *Manager) { m.newID = newID } }

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(engine rules.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		sessions: make(map[string]*domain.Session),
		active:   make(map[string]string),
		stats:    make(map[string]*domain.Stats),
		now:      time.Now,
		newID:    uuid.NewString,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces all state and rebuilds the active index from active sessions.
func (m *Manager) Load(sessions []*domain.Session, stats []*domain.Stats) {
	m.sessions = make(map[string]*domain.Session, len(sessions))
	m.active = make(map[string]string)
	m.stats = make(map[string]*domain.Stats, len(stats))
	for _, s := range sessions {
		if s == nil || s.ID == "" {
			continue
		}
		m.sessions[s.ID] = s.Clone()
	}
	// oldest first so a newer active session wins a corrupted double binding
	for _, s := range m.sortedSessions() {
		if s.Status != domain.StatusActive {
			continue
		}
		m.active[s.WhiteID] = s.ID
		m.active[s.BlackID] = s.ID
	}
	for _, st := range stats {
		if st == nil || st.UserID == "" {
			continue
		}
		cp := *st
		m.stats[st.UserID] = &cp
	}
}

// Sessions returns copies of every session ordered by start time.
func (m *Manager) Sessions() []*domain.Session {
	list := m.sortedSessions()
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		out = append(out, s.Clone())
	}
	return out
}

func (m *Manager) sortedSessions() []*domain.Session {
	list := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})
	return list
}

// AllStats returns copies of every stats row ordered by user id.
func (m *Manager) AllStats() []*domain.Stats {
	out := make([]*domain.Stats, 0, len(m.stats))
	for _, st := range m.stats {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *Manager) StatsOf(userID string) domain.Stats {
	if st, ok := m.stats[userID]; ok {
		return *st
	}
	return domain.Stats{UserID: userID}
}

// EnsureStats creates an empty stats row for a new user.
func (m *Manager) EnsureStats(userID string) {
	if _, ok := m.stats[userID]; !ok && userID != "" {
		m.stats[userID] = &domain.Stats{UserID: userID, UpdatedAt: m.now()}
	}
}

func (m *Manager) Get(id string) (*domain.Session, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ActiveFor returns the active session bound to userID.
func (m *Manager) ActiveFor(userID string) (*domain.Session, bool) {
	id, ok := m.active[userID]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

func (m *Manager) InGame(userID string) bool {
	_, ok := m.active[userID]
	return ok
}

// ActiveCount is the number of active sessions.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, s := range m.sessions {
		if s.Status == domain.StatusActive {
			n++
		}
	}
	return n
}

// SessionsOf lists sessions the user took part in, most recent first.
func (m *Manager) SessionsOf(userID string) []*domain.Session {
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.IsParticipant(userID) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := sortTime(out[i]), sortTime(out[j])
		if ti.Equal(tj) {
			return out[i].ID > out[j].ID
		}
		return ti.After(tj)
	})
	return out
}

// Finished lists finished sessions.
func (m *Manager) Finished() []*domain.Session {
	var out []*domain.Session
	for _, s := range m.sortedSessions() {
		if s.Status == domain.StatusFinished {
			out = append(out, s.Clone())
		}
	}
	return out
}

func sortTime(s *domain.Session) time.Time {
	if s.FinishedAt != nil {
		return *s.FinishedAt
	}
	return s.StartedAt
}

// Start creates an active session. Both users must be free.
func (m *Manager) Start(whiteID, blackID, rematchOf string) (*domain.Session, error) {
	whiteID, blackID = strings.TrimSpace(whiteID), strings.TrimSpace(blackID)
	if whiteID == "" || blackID == "" || whiteID == blackID {
		return nil, ErrInvalidArgs
	}
	if m.InGame(whiteID) || m.InGame(blackID) {
		return nil, ErrParticipantBusy
	}
	pos := m.engine.Initial()
	desc, err := m.engine.Describe(pos)
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &domain.Session{
		ID:        m.newID(),
		WhiteID:   whiteID,
		BlackID:   blackID,
		Status:    domain.StatusActive,
		Result:    domain.ResultOngoing,
		Position:  pos,
		FEN:       desc.FEN,
		Moves:     []domain.Move{},
		RematchBy: []string{},
		RematchOf: rematchOf,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	m.active[whiteID] = s.ID
	m.active[blackID] = s.ID
	m.EnsureStats(whiteID)
	m.EnsureStats(blackID)
	m.log.Info("arena_session_create",
		zap.String("session_id", s.ID),
		zap.String("white_id", whiteID),
		zap.String("black_id", blackID),
		zap.String("rematch_of", rematchOf),
	)
	return s.Clone(), nil
}

// load returns the live session after participant checks.
func (m *Manager) load(id, userID string) (*domain.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return s, nil
}

// Move applies from-to for userID. Not-your-turn and illegal moves leave state untouched.
func (m *Manager) Move(id, userID, from, to, promotion string) (*Outcome, error) {
	cur, err := m.load(id, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	side, err := m.engine.SideToMove(cur.Position)
	if err != nil {
		return nil, err
	}
	if cur.ColorOf(userID) != side {
		return nil, ErrNotYourTurn
	}
	applied, err := m.engine.Apply(cur.Position, from, to, promotion)
	switch {
	case errors.Is(err, rules.ErrBadSquare):
		return nil, ErrBadMove
	case errors.Is(err, rules.ErrIllegalMove), errors.Is(err, rules.ErrGameOver):
		return nil, ErrIllegalMove
	case err != nil:
		return nil, err
	}

	next := cur.Clone()
	now := m.now()
	mv := domain.Move{
		No:        len(next.Moves) + 1,
		Side:      applied.Side,
		From:      applied.UCI[0:2],
		To:        applied.UCI[2:4],
		Promotion: applied.UCI[4:],
		UCI:       applied.UCI,
		SAN:       applied.SAN,
		Position:  applied.Position,
		FENAfter:  applied.FEN,
		CreatedAt: now,
	}
	next.Moves = append(next.Moves, mv)
	next.Position = applied.Position
	next.FEN = applied.FEN
	next.DrawOfferBy = ""
	next.UpdatedAt = now

	term, err := m.engine.Terminal(next.Position)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Move: &mv, Changed: true}
	if term != nil {
		out.Finished = m.finish(next, resultFor(term.Winner), term.Reason)
	}
	m.sessions[next.ID] = next
	m.log.Debug("arena_move",
		zap.String("session_id", next.ID),
		zap.String("user_id", userID),
		zap.String("uci", mv.UCI),
		zap.String("san", mv.SAN),
	)
	out.Session = next.Clone()
	return out, nil
}

func resultFor(winner domain.Color) string {
	switch winner {
	case domain.White:
		return domain.ResultWhiteWon
	case domain.Black:
		return domain.ResultBlackWon
	}
	return domain.ResultDraw
}

// OfferDraw records a draw offer from userID. Repeating one's own offer is a no-op.
func (m *Manager) OfferDraw(id, userID string) (*Outcome, error) {
	cur, err := m.load(id, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	switch cur.DrawOfferBy {
	case userID:
		return &Outcome{Session: cur.Clone()}, nil
	case "":
	default:
		return nil, ErrDrawOfferPending
	}
	next := cur.Clone()
	next.DrawOfferBy = userID
	next.UpdatedAt = m.now()
	m.sessions[next.ID] = next
	m.log.Info("arena_draw_offer", zap.String("session_id", id), zap.String("user_id", userID))
	return &Outcome{Session: next.Clone(), Changed: true}, nil
}

// RespondDraw answers the opponent's pending draw offer.
func (m *Manager) RespondDraw(id, userID string, accept bool) (*Outcome, error) {
	cur, err := m.load(id, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	if cur.DrawOfferBy == "" || cur.DrawOfferBy == userID {
		return nil, ErrNoDrawOffer
	}
	next := cur.Clone()
	next.DrawOfferBy = ""
	next.UpdatedAt = m.now()
	out := &Outcome{Changed: true}
	if accept {
		out.Finished = m.finish(next, domain.ResultDraw, domain.ReasonDrawAgreed)
	}
	m.sessions[next.ID] = next
	out.Session = next.Clone()
	return out, nil
}

// Resign finishes the session with the opponent winning.
func (m *Manager) Resign(id, userID string) (*Outcome, error) {
	cur, err := m.load(id, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusActive {
		return nil, ErrNotActive
	}
	next := cur.Clone()
	result := resultFor(cur.ColorOf(userID).Opposite())
	finished := m.finish(next, result, domain.ReasonResignation)
	m.sessions[next.ID] = next
	return &Outcome{Session: next.Clone(), Changed: true, Finished: finished}, nil
}

// Finish ends an active session. A finished session is left untouched.
func (m *Manager) Finish(id, result string, reason domain.FinishReason) (*Outcome, error) {
	cur, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Status != domain.StatusActive {
		return &Outcome{Session: cur.Clone()}, nil
	}
	next := cur.Clone()
	finished := m.finish(next, result, reason)
	m.sessions[next.ID] = next
	return &Outcome{Session: next.Clone(), Changed: finished, Finished: finished}, nil
}

// finish mutates s in place; callers commit it.
func (m *Manager) finish(s *domain.Session, result string, reason domain.FinishReason) bool {
	if s.Status != domain.StatusActive {
		return false
	}
	now := m.now()
	s.Status = domain.StatusFinished
	s.Result = result
	s.FinishReason = reason
	s.FinishedAt = &now
	s.DrawOfferBy = ""
	s.UpdatedAt = now
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		if m.active[uid] == s.ID {
			delete(m.active, uid)
		}
	}
	m.applyStats(s, now)
	m.log.Info("arena_finish",
		zap.String("session_id", s.ID),
		zap.String("result", s.Result),
		zap.String("reason", string(s.FinishReason)),
		zap.Int("moves", len(s.Moves)),
	)
	return true
}

func (m *Manager) applyStats(s *domain.Session, now time.Time) {
	if s.StatsApplied {
		return
	}
	white, black := m.statsRow(s.WhiteID), m.statsRow(s.BlackID)
	switch s.Result {
	case domain.ResultWhiteWon:
		white.Wins++
		black.Losses++
	case domain.ResultBlackWon:
		black.Wins++
		white.Losses++
	case domain.ResultDraw:
		white.Draws++
		black.Draws++
	default:
		return
	}
	for _, st := range []*domain.Stats{white, black} {
		st.GamesTotal++
		st.Points = Points(st.Wins, st.Draws)
		st.UpdatedAt = now
	}
	s.StatsApplied = true
}

func (m *Manager) statsRow(userID string) *domain.Stats {
	m.EnsureStats(userID)
	return m.stats[userID]
}

// Points is the scoring scheme shared by every leaderboard.
func Points(wins, draws int) int { return 3*wins + draws }

// OfferRematch adds userID's consent on a finished session and spawns the
// color-swapped session once both participants agree. Only one rematch is ever
// spawned per session.
func (m *Manager) OfferRematch(id, userID string) (*Outcome, error) {
	cur, err := m.load(id, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusFinished {
		return nil, ErrNotFinished
	}
	if cur.RematchID != "" {
		return &Outcome{Session: cur.Clone()}, nil
	}
	next := cur.Clone()
	if !contains(next.RematchBy, userID) {
		next.RematchBy = append(next.RematchBy, userID)
	}
	if !contains(next.RematchBy, next.Opponent(userID)) {
		if len(next.RematchBy) == len(cur.RematchBy) {
			return &Outcome{Session: cur.Clone()}, nil
		}
		next.UpdatedAt = m.now()
		m.sessions[next.ID] = next
		m.log.Info("arena_rematch_offer", zap.String("session_id", id), zap.String("user_id", userID))
		return &Outcome{Session: next.Clone(), Changed: true}, nil
	}
	if m.InGame(next.WhiteID) || m.InGame(next.BlackID) {
		return nil, ErrParticipantBusy
	}
	spawned, err := m.Start(next.BlackID, next.WhiteID, next.ID)
	if err != nil {
		return nil, err
	}
	next.RematchID = spawned.ID
	next.UpdatedAt = m.now()
	m.sessions[next.ID] = next
	return &Outcome{Session: next.Clone(), Changed: true, Rematch: spawned}, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
