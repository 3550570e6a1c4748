package domain

import "time"

// Color identifies the side a participant plays.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// Result tokens follow PGN notation.
const (
	ResultOngoing  = "*"
	ResultWhiteWon = "1-0"
	ResultBlackWon = "0-1"
	ResultDraw     = "1/2-1/2"
)

// FinishReason explains why a session ended.
type FinishReason string

const (
	ReasonCheckmate            FinishReason = "checkmate"
	ReasonStalemate            FinishReason = "stalemate"
	ReasonRepetition           FinishReason = "repetition"
	ReasonFiftyMove            FinishReason = "fifty_move"
	ReasonInsufficientMaterial FinishReason = "insufficient_material"
	ReasonDrawAgreed           FinishReason = "draw_agreed"
	ReasonResignation          FinishReason = "resignation"
)

type User struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Stats struct {
	UserID     string    `json:"userId"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Draws      int       `json:"draws"`
	GamesTotal int       `json:"gamesTotal"`
	Points     int       `json:"points"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Move is one applied half-move in a session's log.
type Move struct {
	No        int       `json:"moveNo"`
	Side      Color     `json:"side"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	Position  string    `json:"position"`
	FENAfter  string    `json:"fenAfter"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the persisted state of one match.
type Session struct {
	ID           string        `json:"id"`
	WhiteID      string        `json:"whiteUserId"`
	BlackID      string        `json:"blackUserId"`
	Status       SessionStatus `json:"status"`
	Result       string        `json:"result"`
	FinishReason FinishReason  `json:"finishReason,omitempty"`
	Position     string        `json:"position"`
	FEN          string        `json:"fen"`
	Moves        []Move        `json:"moves"`
	DrawOfferBy  string        `json:"drawOfferBy,omitempty"`
	RematchBy    []string      `json:"rematchBy"`
	RematchOf    string        `json:"rematchOf,omitempty"`
	RematchID    string        `json:"rematchId,omitempty"`
	StatsApplied bool          `json:"statsApplied"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (s *Session) IsParticipant(userID string) bool {
	return userID != "" && (s.WhiteID == userID || s.BlackID == userID)
}

// ColorOf returns the side bound to userID, or "" for non-participants.
func (s *Session) ColorOf(userID string) Color {
	switch {
	case userID == "":
		return ""
	case s.WhiteID == userID:
		return White
	case s.BlackID == userID:
		return Black
	}
	return ""
}

// Opponent returns the other participant's id.
func (s *Session) Opponent(userID string) string {
	if s.WhiteID == userID {
		return s.BlackID
	}
	if s.BlackID == userID {
		return s.WhiteID
	}
	return ""
}

// PlayerOf returns the user bound to color.
func (s *Session) PlayerOf(c Color) string {
	if c == White {
		return s.WhiteID
	}
	return s.BlackID
}

// Clone returns a deep copy so transitions can be computed without touching the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Moves = append([]Move(nil), s.Moves...)
	cp.RematchBy = append([]string(nil), s.RematchBy...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeAccepted ChallengeStatus = "accepted"
)

type Challenge struct {
	ID         string          `json:"id"`
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Status     ChallengeStatus `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Expired reports whether the deadline has passed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
