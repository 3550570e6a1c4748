package arenadto

import "time"

// PresenceEntry pairs a user with a presence status (offline, online, in_queue, in_game).
type PresenceEntry struct {
	Player
	Status string `json:"status"`
}

type QueueSnapshot struct {
	Users []PresenceEntry `json:"users"`
}

type PresenceSnapshot struct {
	Users []PresenceEntry `json:"users"`
}

type Challenge struct {
	ID        string    `json:"id"`
	From      Player    `json:"from"`
	To        Player    `json:"to"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ChallengeDeclined struct {
	ChallengeID string `json:"challengeId"`
	By          Player `json:"by"`
	Message     string `json:"message,omitempty"`
}

type Stats struct {
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Draws      int `json:"draws"`
	GamesTotal int `json:"gamesTotal"`
	Points     int `json:"points"`
}

// Me is the signed-in user's own profile.
type Me struct {
	Player
	Username string `json:"username,omitempty"`
	Stats    Stats  `json:"stats"`
	Status   string `json:"status"`
	Session  string `json:"activeSessionId,omitempty"`
}

// HistoryItem is a session seen from one participant.
type HistoryItem struct {
	SessionID    string     `json:"sessionId"`
	Opponent     Player     `json:"opponent"`
	Color        string     `json:"color"`
	Status       string     `json:"status"`
	Result       string     `json:"result"`
	Outcome      string     `json:"outcome"`
	FinishReason string     `json:"finishReason,omitempty"`
	MoveCount    int        `json:"moveCount"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  Player `json:"user"`
}

// Config is the public client bootstrap served at /api/config.
type Config struct {
	AllowDevAuth  bool   `json:"allowDevAuth"`
	TokenExchange bool   `json:"tokenExchange"`
	TimeZone      string `json:"timezone"`
}
