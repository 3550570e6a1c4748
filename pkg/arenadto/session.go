package arenadto

import "time"

// Player is the public profile of a user.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type Move struct {
	MoveNo    int       `json:"moveNo"`
	Side      string    `json:"side"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FENAfter  string    `json:"fenAfter"`
	CreatedAt time.Time `json:"createdAt"`
}

type Target struct {
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Relative markers used for draw offers and rematch consent.
const (
	MarkSelf     = "self"
	MarkOpponent = "opponent"
)

// SessionState is one viewer's projection of a session.
type SessionState struct {
	SessionID    string              `json:"sessionId"`
	Status       string              `json:"status"`
	Result       string              `json:"result"`
	FinishReason string              `json:"finishReason,omitempty"`
	ViewerColor  string              `json:"viewerColor,omitempty"`
	White        Player              `json:"white"`
	Black        Player              `json:"black"`
	Turn         string              `json:"turn"`
	InCheck      bool                `json:"inCheck"`
	FEN          string              `json:"fen"`
	PGN          string              `json:"pgn"`
	Moves        []Move              `json:"moves"`
	LegalMoves   map[string][]Target `json:"legalMoves"`
	DrawOffer    string              `json:"drawOffer,omitempty"`
	Rematch      []string            `json:"rematch"`
	RematchOf    string              `json:"rematchOf,omitempty"`
	RematchID    string              `json:"rematchId,omitempty"`
	StartedAt    time.Time           `json:"startedAt"`
	FinishedAt   *time.Time          `json:"finishedAt,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

type MatchFound struct {
	SessionID string `json:"sessionId"`
	Color     string `json:"color"`
	Opponent  Player `json:"opponent"`
	Origin    string `json:"origin"`
}

type MoveApplied struct {
	SessionID string `json:"sessionId"`
	Move      Move   `json:"move"`
}

// SessionFinished carries the viewer's outcome: win, loss, draw, or empty for spectators.
type SessionFinished struct {
	SessionID    string       `json:"sessionId"`
	Result       string       `json:"result"`
	FinishReason string       `json:"finishReason"`
	Outcome      string       `json:"outcome,omitempty"`
	State        SessionState `json:"state"`
}

type DrawOffered struct {
	SessionID string `json:"sessionId"`
	By        Player `json:"by"`
}

type RematchOffered struct {
	SessionID string `json:"sessionId"`
	By        Player `json:"by"`
}

type RematchAccepted struct {
	OldSessionID string `json:"oldSessionId"`
	NewSessionID string `json:"newSessionId"`
}
