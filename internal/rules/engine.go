package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrBadPosition = errors.New("invalid position token")
	ErrBadSquare   = errors.New("invalid square or promotion")
	ErrIllegalMove = errors.New("illegal move")
	ErrGameOver    = errors.New("position is terminal")
)

// Target is one legal destination from an origin square.
type Target struct {
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Applied describes a move accepted by the engine.
type Applied struct {
	Position string
	Side     domain.Color
	UCI      string
	SAN      string
	FEN      string
}

// Terminal is a finished position. Winner is empty for draws.
type Terminal struct {
	Reason domain.FinishReason
	Winner domain.Color
}

// Description is the presentation copy of a position.
type Description struct {
	FEN     string
	Turn    domain.Color
	InCheck bool
}

// Engine validates moves and reports terminal positions. Position tokens are
// opaque to callers.
type Engine interface {
	Initial() string
	LegalMoves(pos string) (map[string][]Target, error)
	Apply(pos, from, to, promotion string) (Applied, error)
	SideToMove(pos string) (domain.Color, error)
	Terminal(pos string) (*Terminal, error)
	Describe(pos string) (Description, error)
}

const (
	startToken = "startpos"
	movesToken = "moves"
)

// Chess implements Engine for standard chess. The position token is
// "startpos" optionally followed by "moves" and the UCI move list, so
// repetition history survives a reload.
type Chess struct{}

func NewChess() *Chess { return &Chess{} }

func (c *Chess) Initial() string { return startToken }

func (c *Chess) LegalMoves(pos string) (map[string][]Target, error) {
	game, err := replay(pos)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Target)
	if game.Outcome() != nchess.NoOutcome {
		return out, nil
	}
	for _, mv := range game.ValidMoves() {
		from := mv.S1().String()
		out[from] = append(out[from], Target{To: mv.S2().String(), Promotion: promoLetter(mv.Promo())})
	}
	return out, nil
}

func (c *Chess) Apply(pos, from, to, promotion string) (Applied, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if !validSquare(from) || !validSquare(to) || !validPromotion(promotion) {
		return Applied{}, ErrBadSquare
	}
	game, err := replay(pos)
	if err != nil {
		return Applied{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Applied{}, ErrGameOver
	}
	side := colorFrom(game.Position().Turn())
	uci := from + to + promotion
	before := game.Position()
	mv, err := nchess.UCINotation{}.Decode(before, uci)
	if err != nil {
		return Applied{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(before, mv)
	if err := game.Move(mv, nil); err != nil {
		return Applied{}, ErrIllegalMove
	}
	return Applied{
		Position: appendMove(pos, uci),
		Side:     side,
		UCI:      uci,
		SAN:      san,
		FEN:      game.FEN(),
	}, nil
}

func (c *Chess) SideToMove(pos string) (domain.Color, error) {
	game, err := replay(pos)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

func (c *Chess) Terminal(pos string) (*Terminal, error) {
	game, err := replay(pos)
	if err != nil {
		return nil, err
	}
	return terminalOf(game), nil
}

func (c *Chess) Describe(pos string) (Description, error) {
	game, err := replay(pos)
	if err != nil {
		return Description{}, err
	}
	d := Description{FEN: game.FEN(), Turn: colorFrom(game.Position().Turn())}
	if moves := game.Moves(); len(moves) > 0 {
		d.InCheck = moves[len(moves)-1].HasTag(nchess.Check)
	}
	return d, nil
}

func terminalOf(game *nchess.Game) *Terminal {
	switch game.Method() {
	case nchess.Checkmate:
		winner := domain.White
		if game.Outcome() == nchess.BlackWon {
			winner = domain.Black
		}
		return &Terminal{Reason: domain.ReasonCheckmate, Winner: winner}
	case nchess.Stalemate:
		return &Terminal{Reason: domain.ReasonStalemate}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return &Terminal{Reason: domain.ReasonRepetition}
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return &Terminal{Reason: domain.ReasonFiftyMove}
	case nchess.InsufficientMaterial:
		return &Terminal{Reason: domain.ReasonInsufficientMaterial}
	}
	// threefold and fifty-move are claimable draws in the library; treat them as automatic
	for _, m := range game.EligibleDraws() {
		switch m {
		case nchess.ThreefoldRepetition:
			return &Terminal{Reason: domain.ReasonRepetition}
		case nchess.FiftyMoveRule:
			return &Terminal{Reason: domain.ReasonFiftyMove}
		}
	}
	return nil
}

func replay(pos string) (*nchess.Game, error) {
	fields := strings.Fields(pos)
	if len(fields) == 0 || fields[0] != startToken {
		return nil, ErrBadPosition
	}
	game := nchess.NewGame()
	if len(fields) == 1 {
		return game, nil
	}
	if fields[1] != movesToken {
		return nil, ErrBadPosition
	}
	for _, mv := range fields[2:] {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: replay %s: %v", ErrBadPosition, mv, err)
		}
	}
	return game, nil
}

func appendMove(pos, uci string) string {
	pos = strings.TrimSpace(pos)
	if pos == startToken {
		return startToken + " " + movesToken + " " + uci
	}
	return pos + " " + uci
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}

func promoLetter(p nchess.PieceType) string {
	switch p {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	}
	return ""
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func validPromotion(p string) bool {
	switch p {
	case "", "q", "r", "b", "n":
		return true
	}
	return false
}
