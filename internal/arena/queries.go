package arena

import (
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/leaderboard"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Waiting lists queued users in order with their presence.
func (c *Coordinator) Waiting() arenadto.QueueSnapshot {
	ids := c.queue.Snapshot()
	out := arenadto.QueueSnapshot{Users: make([]arenadto.PresenceEntry, 0, len(ids))}
	for _, id := range ids {
		out.Users = append(out.Users, arenadto.PresenceEntry{Player: c.Profile(id), Status: string(c.status(id))})
	}
	return out
}

func (c *Coordinator) PresenceSnapshot() arenadto.PresenceSnapshot {
	ids := c.presence.Online()
	out := arenadto.PresenceSnapshot{Users: make([]arenadto.PresenceEntry, 0, len(ids))}
	for _, id := range ids {
		out.Users = append(out.Users, arenadto.PresenceEntry{Player: c.Profile(id), Status: string(c.status(id))})
	}
	return out
}

// SessionFor returns viewer's projection of a session. Only participants may look.
func (c *Coordinator) SessionFor(viewer, sessionID string) (arenadto.SessionState, error) {
	s, ok := c.games.Get(sessionID)
	if !ok {
		return arenadto.SessionState{}, c.coded(game.ErrNotFound)
	}
	if !s.IsParticipant(viewer) {
		return arenadto.SessionState{}, c.coded(game.ErrNotParticipant)
	}
	return c.games.View(s, viewer, c.Profile), nil
}

// History lists userID's sessions, most recent first.
func (c *Coordinator) History(userID string) []arenadto.HistoryItem {
	sessions := c.games.SessionsOf(userID)
	out := make([]arenadto.HistoryItem, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, arenadto.HistoryItem{
			SessionID:    s.ID,
			Opponent:     c.Profile(s.Opponent(userID)),
			Color:        string(s.ColorOf(userID)),
			Status:       string(s.Status),
			Result:       s.Result,
			Outcome:      game.PerspectiveOutcome(s, userID),
			FinishReason: string(s.FinishReason),
			MoveCount:    len(s.Moves),
			StartedAt:    s.StartedAt,
			FinishedAt:   s.FinishedAt,
		})
	}
	return out
}

func (c *Coordinator) GlobalBoard() arenadto.Leaderboard {
	return c.board.Global(c.games.AllStats(), c.Profile)
}

func (c *Coordinator) DailyBoard(date string) arenadto.Leaderboard {
	return c.board.Daily(c.games.Finished(), date, c.now(), c.Profile)
}

func (c *Coordinator) DailyWinner(date string) arenadto.DailyWinner {
	b := c.DailyBoard(date)
	return arenadto.DailyWinner{Date: b.Date, TimeZone: b.TimeZone, Winner: leaderboard.Winner(b)}
}

// Me returns the caller's profile, stats and presence.
func (c *Coordinator) Me(userID string) (arenadto.Me, error) {
	u, ok := c.users[userID]
	if !ok {
		return arenadto.Me{}, c.coded(ErrUserNotFound)
	}
	st := c.games.StatsOf(userID)
	me := arenadto.Me{
		Player:   c.Profile(userID),
		Username: u.Username,
		Stats: arenadto.Stats{
			Wins:       st.Wins,
			Losses:     st.Losses,
			Draws:      st.Draws,
			GamesTotal: st.GamesTotal,
			Points:     game.Points(st.Wins, st.Draws),
		},
		Status: string(c.status(userID)),
	}
	if s, ok := c.games.ActiveFor(userID); ok {
		me.Session = s.ID
	}
	return me, nil
}

// TimeZone is the IANA zone daily leaderboards are cut in.
func (c *Coordinator) TimeZone() string { return c.board.Location().String() }
