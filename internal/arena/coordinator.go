package arena

import (
	"context"
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/challenge"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/leaderboard"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Session origins reported in match-found and metrics.
const (
	OriginQueue     = "queue"
	OriginChallenge = "challenge"
	OriginRematch   = "rematch"
)

const (
	saveTimeout    = 5 * time.Second
	archiveTimeout = 10 * time.Second
)

// Notifier delivers outbound events. Implementations must not block.
type Notifier interface {
	ToUser(userID string, ev arenadto.Event)
	ToConn(connID string, ev arenadto.Event)
	ToAll(ev arenadto.Event)
}

// Archiver receives finished sessions.
type Archiver interface {
	SaveResult(ctx context.Context, s *domain.Session, whiteName, blackName string) error
}

type Deps struct {
	Engine       rules.Engine
	Store        store.Store
	Archive      Archiver
	Notifier     Notifier
	Leaderboard  *leaderboard.Aggregator
	Messages     *msgcat.Catalog
	Metrics      *metrics.Metrics
	ChallengeTTL time.Duration
	Clock        func() time.Time
	// Coin decides colors: true keeps the first user on white.
	Coin   func() bool
	NewID  func() string
	Logger *zap.Logger
}

// Coordinator owns every registry of the arena. It is not safe for concurrent
// use; Hub serialises access.
type Coordinator struct {
	games      *game.Manager
	challenges *challenge.Broker
	queue      *matchmaking.Queue
	presence   *presence.Registry
	users      map[string]*domain.User
	bySubject  map[string]string

	store    store.Store
	writer   *stateWriter
	archive  Archiver
	notify   Notifier
	board    *leaderboard.Aggregator
	messages *msgcat.Catalog
	metrics  *metrics.Metrics

	now   func() time.Time
	coin  func() bool
	newID func() string
	log   *zap.Logger

	archiving sync.WaitGroup
}

func NewCoordinator(d Deps) (*Coordinator, error) {
	if d.Engine == nil {
		d.Engine = rules.NewChess()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Coin == nil {
		d.Coin = cryptoCoin
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Leaderboard == nil {
		agg, err := leaderboard.New("UTC", "")
		if err != nil {
			return nil, err
		}
		d.Leaderboard = agg
	}
	c := &Coordinator{
		games:      game.NewManager(d.Engine, game.WithClock(d.Clock), game.WithIDs(d.NewID), game.WithLogger(d.Logger)),
		challenges: challenge.NewBroker(d.ChallengeTTL, d.NewID),
		queue:      matchmaking.NewQueue(),
		presence:   presence.NewRegistry(),
		users:      make(map[string]*domain.User),
		bySubject:  make(map[string]string),
		store:      d.Store,
		archive:    d.Archive,
		notify:     d.Notifier,
		board:      d.Leaderboard,
		messages:   d.Messages,
		metrics:    d.Metrics,
		now:        d.Clock,
		coin:       d.Coin,
		newID:      d.NewID,
		log:        d.Logger,
	}
	if d.Store != nil {
		c.writer = newStateWriter(d.Store, d.Metrics, d.Logger.Named("store"))
	}
	return c, nil
}

// Restore loads durable state and rebuilds the active-session index.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	st, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.users = make(map[string]*domain.User, len(st.Users))
	c.bySubject = make(map[string]string, len(st.Users))
	for _, u := range st.Users {
		if u == nil || u.ID == "" {
			continue
		}
		cp := *u
		c.users[u.ID] = &cp
		if u.Subject != "" {
			c.bySubject[u.Subject] = u.ID
		}
	}
	c.games.Load(st.Sessions, st.Stats)
	c.metrics.SetActiveSessions(c.games.ActiveCount())
	c.log.Info("arena_restore",
		zap.Int("users", len(c.users)),
		zap.Int("sessions", len(st.Sessions)),
		zap.Int("active", c.games.ActiveCount()),
	)
	return nil
}

// Wait blocks until pending archive writes finish.
func (c *Coordinator) Wait() { c.archiving.Wait() }

// Close flushes the last state snapshot and waits for archive writes.
// Later mutations are saved synchronously.
func (c *Coordinator) Close() {
	if c.writer != nil {
		c.writer.close()
	}
	c.Wait()
}

// persist snapshots the durable state and hands it to the writer goroutine.
func (c *Coordinator) persist() {
	if c.writer == nil {
		return
	}
	users := make([]*domain.User, 0, len(c.users))
	for _, u := range c.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	c.writer.submit(&store.State{Users: users, Stats: c.games.AllStats(), Sessions: c.games.Sessions()})
}

func (c *Coordinator) archiveResult(s *domain.Session) {
	if c.archive == nil || s == nil {
		return
	}
	white, black := c.Profile(s.WhiteID).DisplayName, c.Profile(s.BlackID).DisplayName
	c.archiving.Add(1)
	go func() {
		defer c.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.archive.SaveResult(ctx, s, white, black); err != nil {
			c.log.Warn("arena_archive_failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}()
}

// ---- users ----

// UpsertIdentity creates or refreshes the user bound to id.Subject.
func (c *Coordinator) UpsertIdentity(id identity.Identity) (domain.User, error) {
	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return domain.User{}, identity.ErrMissingSubject
	}
	now := c.now()
	name := identity.SanitizeDisplayName(id.DisplayName)
	if uid, ok := c.bySubject[subject]; ok {
		u := c.users[uid]
		if u.DisplayName != name || u.AvatarURL != id.AvatarURL || u.Username != id.Username {
			u.DisplayName = name
			u.AvatarURL = id.AvatarURL
			u.Username = id.Username
			u.UpdatedAt = now
			c.persist()
		}
		return *u, nil
	}
	u := &domain.User{
		ID:          c.newID(),
		Subject:     subject,
		Username:    id.Username,
		DisplayName: name,
		AvatarURL:   id.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.users[u.ID] = u
	c.bySubject[subject] = u.ID
	c.games.EnsureStats(u.ID)
	c.persist()
	c.log.Info("arena_user_create", zap.String("user_id", u.ID), zap.String("subject", subject))
	return *u, nil
}

func (c *Coordinator) User(userID string) (domain.User, bool) {
	u, ok := c.users[userID]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// Profile returns the public profile of userID; unknown users render by id.
func (c *Coordinator) Profile(userID string) arenadto.Player {
	if u, ok := c.users[userID]; ok {
		return arenadto.Player{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
	}
	return arenadto.Player{ID: userID, DisplayName: userID}
}

func (c *Coordinator) status(userID string) presence.Status {
	return c.presence.Status(userID, c.games.InGame, c.queue.Contains)
}

// ---- connections ----

// Connect registers a live connection and resynchronises it.
func (c *Coordinator) Connect(connID, userID string) {
	cameOnline := c.presence.Register(userID, connID)
	c.metrics.SetConnectedUsers(len(c.presence.Online()))
	c.log.Debug("arena_connect", zap.String("conn_id", connID), zap.String("user_id", userID), zap.Bool("came_online", cameOnline))

	if s, ok := c.games.ActiveFor(userID); ok {
		c.notify.ToConn(connID, c.stateEvent(s, userID))
	}
	c.notify.ToConn(connID, arenadto.Event{Type: arenadto.EventQueueSnapshot, Payload: c.Waiting()})
	for _, ch := range c.challenges.Pending(userID, c.now()) {
		typ := arenadto.EventChallengeCreated
		if ch.ToUserID == userID {
			typ = arenadto.EventChallengeIncoming
		}
		c.notify.ToConn(connID, arenadto.Event{Type: typ, Payload: c.challengeDTO(ch)})
	}
	if cameOnline {
		c.broadcastPresence()
		c.matchmake()
	} else {
		c.notify.ToConn(connID, arenadto.Event{Type: arenadto.EventPresenceSnapshot, Payload: c.PresenceSnapshot()})
	}
}

// Disconnect drops a connection; the last one takes the user offline and out of the queue.
func (c *Coordinator) Disconnect(connID, userID string) {
	if !c.presence.Unregister(userID, connID) {
		return
	}
	c.metrics.SetConnectedUsers(len(c.presence.Online()))
	c.log.Debug("arena_offline", zap.String("user_id", userID))
	c.queue.Remove(userID)
	c.matchmake()
	c.broadcastLobby()
}

// ---- queue ----

func (c *Coordinator) JoinQueue(userID string) error {
	if c.games.InGame(userID) {
		return c.conflict(CodeAlreadyInGame)
	}
	if !c.queue.Enqueue(userID) {
		return nil
	}
	c.log.Info("arena_queue_join", zap.String("user_id", userID))
	if !c.matchmake() {
		c.broadcastLobby()
	}
	return nil
}

func (c *Coordinator) LeaveQueue(userID string) error {
	if c.queue.Remove(userID) {
		c.log.Info("arena_queue_leave", zap.String("user_id", userID))
		c.broadcastLobby()
	}
	return nil
}

func (c *Coordinator) eligible(userID string) bool {
	return c.presence.IsOnline(userID) && !c.games.InGame(userID)
}

// matchmake pairs queued users until no pair remains. Reports whether a
// session was started, in which case lobby views were already refreshed.
func (c *Coordinator) matchmake() bool {
	started := false
	for {
		a, b, ok := c.queue.NextPair(c.eligible)
		if !ok {
			return started
		}
		if !c.eligible(a) || !c.eligible(b) {
			continue
		}
		white, black := c.colors(a, b)
		if _, err := c.startSession(white, black, OriginQueue); err != nil {
			c.log.Warn("arena_matchmake_failed", zap.String("a", a), zap.String("b", b), zap.Error(err))
			continue
		}
		started = true
	}
}

func (c *Coordinator) colors(a, b string) (white, black string) {
	if c.coin() {
		return a, b
	}
	return b, a
}

// startSession creates a session and announces it. Both users leave the queue
// and lose every pending challenge.
func (c *Coordinator) startSession(white, black, origin string) (*domain.Session, error) {
	s, err := c.games.Start(white, black, "")
	if err != nil {
		return nil, err
	}
	c.announce(s, origin)
	return s, nil
}

func (c *Coordinator) announce(s *domain.Session, origin string) {
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.queue.Remove(uid)
		c.challenges.ClearUser(uid)
	}
	c.persist()
	c.metrics.SessionCreated(origin)
	c.metrics.SetActiveSessions(c.games.ActiveCount())
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.notify.ToUser(uid, arenadto.Event{Type: arenadto.EventMatchFound, Payload: arenadto.MatchFound{
			SessionID: s.ID,
			Color:     string(s.ColorOf(uid)),
			Opponent:  c.Profile(s.Opponent(uid)),
			Origin:    origin,
		}})
		c.notify.ToUser(uid, c.stateEvent(s, uid))
	}
	c.broadcastLobby()
}

// ---- challenges ----

func (c *Coordinator) CreateChallenge(from, to string) (arenadto.Challenge, error) {
	now := c.now()
	c.challenges.Sweep(now)
	to = strings.TrimSpace(to)
	if to == "" {
		return arenadto.Challenge{}, c.coded(challenge.ErrInvalidArgs)
	}
	if from == to {
		return arenadto.Challenge{}, c.coded(challenge.ErrSelfChallenge)
	}
	if _, ok := c.users[to]; !ok {
		return arenadto.Challenge{}, c.coded(ErrUserNotFound)
	}
	if c.games.InGame(from) || c.games.InGame(to) {
		return arenadto.Challenge{}, c.conflict(CodeAlreadyInGame)
	}
	ch, err := c.challenges.Create(from, to, now)
	if err != nil {
		return arenadto.Challenge{}, c.coded(err)
	}
	dto := c.challengeDTO(*ch)
	c.notify.ToUser(to, arenadto.Event{Type: arenadto.EventChallengeIncoming, Payload: dto})
	c.notify.ToUser(from, arenadto.Event{Type: arenadto.EventChallengeCreated, Payload: dto})
	c.log.Info("arena_challenge_create", zap.String("challenge_id", ch.ID), zap.String("from", from), zap.String("to", to))
	return dto, nil
}

// RespondChallenge resolves a challenge addressed to by. Accepting returns the new session.
func (c *Coordinator) RespondChallenge(by, id string, accept bool) (*domain.Session, error) {
	ch, err := c.challenges.Respond(id, by, accept, c.now())
	if err != nil {
		return nil, c.coded(err)
	}
	if !accept {
		name := c.Profile(by).DisplayName
		c.notify.ToUser(ch.FromUserID, arenadto.Event{Type: arenadto.EventChallengeDeclined, Payload: arenadto.ChallengeDeclined{
			ChallengeID: ch.ID,
			By:          c.Profile(by),
			Message:     c.messages.Text("lobby.challenge_declined", map[string]any{"Name": name}, name+" declined your challenge."),
		}})
		c.log.Info("arena_challenge_declined", zap.String("challenge_id", ch.ID), zap.String("by", by))
		return nil, nil
	}
	if c.games.InGame(ch.FromUserID) || c.games.InGame(ch.ToUserID) {
		return nil, c.conflict(CodeAlreadyInGame)
	}
	white, black := c.colors(ch.FromUserID, ch.ToUserID)
	s, err := c.startSession(white, black, OriginChallenge)
	if err != nil {
		return nil, c.coded(err)
	}
	return s, nil
}

// SweepChallenges purges expired challenges.
func (c *Coordinator) SweepChallenges() int {
	removed := c.challenges.Sweep(c.now())
	if len(removed) > 0 {
		c.log.Debug("arena_challenge_sweep", zap.Int("removed", len(removed)))
	}
	return len(removed)
}

func (c *Coordinator) challengeDTO(ch domain.Challenge) arenadto.Challenge {
	return arenadto.Challenge{
		ID:        ch.ID,
		From:      c.Profile(ch.FromUserID),
		To:        c.Profile(ch.ToUserID),
		CreatedAt: ch.CreatedAt,
		ExpiresAt: ch.ExpiresAt,
	}
}

// ---- session transitions ----

func (c *Coordinator) SubmitMove(userID, sessionID, from, to, promotion string) error {
	out, err := c.games.Move(sessionID, userID, from, to, promotion)
	if err != nil {
		return c.coded(err)
	}
	c.metrics.MoveApplied()
	s := out.Session
	if !out.Finished {
		c.persist()
	}
	mv := game.MoveDTO(*out.Move)
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.notify.ToUser(uid, arenadto.Event{Type: arenadto.EventMoveApplied, Payload: arenadto.MoveApplied{SessionID: s.ID, Move: mv}})
	}
	if out.Finished {
		c.finished(s)
		return nil
	}
	c.broadcastState(s)
	return nil
}

func (c *Coordinator) OfferDraw(userID, sessionID string) error {
	out, err := c.games.OfferDraw(sessionID, userID)
	if err != nil {
		return c.coded(err)
	}
	if !out.Changed {
		return nil
	}
	s := out.Session
	c.persist()
	c.notify.ToUser(s.Opponent(userID), arenadto.Event{Type: arenadto.EventDrawOffered, Payload: arenadto.DrawOffered{SessionID: s.ID, By: c.Profile(userID)}})
	c.broadcastState(s)
	return nil
}

func (c *Coordinator) RespondDraw(userID, sessionID string, accept bool) error {
	out, err := c.games.RespondDraw(sessionID, userID, accept)
	if err != nil {
		return c.coded(err)
	}
	if out.Finished {
		c.finished(out.Session)
		return nil
	}
	c.persist()
	c.broadcastState(out.Session)
	return nil
}

func (c *Coordinator) Resign(userID, sessionID string) error {
	out, err := c.games.Resign(sessionID, userID)
	if err != nil {
		return c.coded(err)
	}
	if out.Finished {
		c.finished(out.Session)
	}
	return nil
}

func (c *Coordinator) OfferRematch(userID, sessionID string) error {
	out, err := c.games.OfferRematch(sessionID, userID)
	if err != nil {
		return c.coded(err)
	}
	if !out.Changed {
		return nil
	}
	s := out.Session
	if out.Rematch == nil {
		c.persist()
		c.notify.ToUser(s.Opponent(userID), arenadto.Event{Type: arenadto.EventRematchOffered, Payload: arenadto.RematchOffered{SessionID: s.ID, By: c.Profile(userID)}})
		c.broadcastState(s)
		return nil
	}
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.notify.ToUser(uid, arenadto.Event{Type: arenadto.EventRematchAccepted, Payload: arenadto.RematchAccepted{OldSessionID: s.ID, NewSessionID: out.Rematch.ID}})
	}
	c.announce(out.Rematch, OriginRematch)
	return nil
}

// finished persists and announces a session that just ended.
func (c *Coordinator) finished(s *domain.Session) {
	c.persist()
	c.metrics.SessionFinished(string(s.FinishReason))
	c.metrics.SetActiveSessions(c.games.ActiveCount())
	c.broadcastState(s)
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.notify.ToUser(uid, arenadto.Event{Type: arenadto.EventSessionFinished, Payload: arenadto.SessionFinished{
			SessionID:    s.ID,
			Result:       s.Result,
			FinishReason: string(s.FinishReason),
			Outcome:      game.PerspectiveOutcome(s, uid),
			State:        c.games.View(s, uid, c.Profile),
		}})
	}
	c.broadcastLobby()
	c.archiveResult(s)
}

func (c *Coordinator) stateEvent(s *domain.Session, viewer string) arenadto.Event {
	return arenadto.Event{Type: arenadto.EventSessionState, Payload: c.games.View(s, viewer, c.Profile)}
}

func (c *Coordinator) broadcastState(s *domain.Session) {
	for _, uid := range []string{s.WhiteID, s.BlackID} {
		c.notify.ToUser(uid, c.stateEvent(s, uid))
	}
}

// resync sends the caller's current view of a session to one connection.
func (c *Coordinator) resync(connID, userID, sessionID string) {
	s, ok := c.games.Get(sessionID)
	if !ok || !s.IsParticipant(userID) {
		return
	}
	c.notify.ToConn(connID, c.stateEvent(s, userID))
}

func (c *Coordinator) broadcastLobby() {
	c.notify.ToAll(arenadto.Event{Type: arenadto.EventQueueSnapshot, Payload: c.Waiting()})
	c.broadcastPresence()
}

func (c *Coordinator) broadcastPresence() {
	c.notify.ToAll(arenadto.Event{Type: arenadto.EventPresenceSnapshot, Payload: c.PresenceSnapshot()})
}

func cryptoCoin() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()&1 == 0
	}
	return b[0]&1 == 0
}

type nopNotifier struct{}

func (nopNotifier) ToUser(string, arenadto.Event) {}
func (nopNotifier) ToConn(string, arenadto.Event) {}
func (nopNotifier) ToAll(arenadto.Event)          {}
