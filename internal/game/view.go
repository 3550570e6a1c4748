package game

import (
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// ProfileFunc resolves a user id to its public profile.
type ProfileFunc func(userID string) arenadto.Player

// View projects s for viewer. Legal moves are filled only for the viewer whose
// turn it is while the session is active.
func (m *Manager) View(s *domain.Session, viewer string, profile ProfileFunc) arenadto.SessionState {
	if profile == nil {
		profile = func(id string) arenadto.Player { return arenadto.Player{ID: id, DisplayName: id} }
	}
	st := arenadto.SessionState{
		SessionID:    s.ID,
		Status:       string(s.Status),
		Result:       s.Result,
		FinishReason: string(s.FinishReason),
		ViewerColor:  string(s.ColorOf(viewer)),
		White:        profile(s.WhiteID),
		Black:        profile(s.BlackID),
		FEN:          s.FEN,
		Moves:        make([]arenadto.Move, 0, len(s.Moves)),
		LegalMoves:   map[string][]arenadto.Target{},
		Rematch:      []string{},
		RematchOf:    s.RematchOf,
		RematchID:    s.RematchID,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	for _, mv := range s.Moves {
		st.Moves = append(st.Moves, MoveDTO(mv))
	}
	st.PGN = BuildPGN(s, st.White.DisplayName, st.Black.DisplayName)

	if desc, err := m.engine.Describe(s.Position); err == nil {
		st.Turn = string(desc.Turn)
		st.InCheck = desc.InCheck
		if st.FEN == "" {
			st.FEN = desc.FEN
		}
	}
	if s.Status == domain.StatusActive && st.ViewerColor != "" && st.ViewerColor == st.Turn {
		if legal, err := m.engine.LegalMoves(s.Position); err == nil {
			for from, targets := range legal {
				out := make([]arenadto.Target, 0, len(targets))
				for _, t := range targets {
					out = append(out, arenadto.Target{To: t.To, Promotion: t.Promotion})
				}
				st.LegalMoves[from] = out
			}
		}
	}

	st.DrawOffer = relative(s.DrawOfferBy, viewer)
	for _, uid := range s.RematchBy {
		if mark := relative(uid, viewer); mark != "" {
			st.Rematch = append(st.Rematch, mark)
		}
	}
	return st
}

func relative(holder, viewer string) string {
	switch {
	case holder == "":
		return ""
	case holder == viewer:
		return arenadto.MarkSelf
	}
	return arenadto.MarkOpponent
}

func MoveDTO(mv domain.Move) arenadto.Move {
	return arenadto.Move{
		MoveNo:    mv.No,
		Side:      string(mv.Side),
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		UCI:       mv.UCI,
		SAN:       mv.SAN,
		FENAfter:  mv.FENAfter,
		CreatedAt: mv.CreatedAt,
	}
}

// PerspectiveOutcome returns win, loss, draw or ongoing for userID.
func PerspectiveOutcome(s *domain.Session, userID string) string {
	switch s.Result {
	case domain.ResultDraw:
		return "draw"
	case domain.ResultWhiteWon:
		if s.WhiteID == userID {
			return "win"
		}
		return "loss"
	case domain.ResultBlackWon:
		if s.BlackID == userID {
			return "win"
		}
		return "loss"
	}
	return "ongoing"
}
