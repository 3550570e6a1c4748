package arena

import (
	"errors"
	"net/http"

	"github.com/park285/cheese-arena/internal/challenge"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/protocol"
)

// Kind groups error codes by how a caller should react.
type Kind string

const (
	KindValidation Kind = "validation"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Error codes sent to clients.
const (
	CodeBadRequest         = "bad_request"
	CodeBadMovePayload     = "bad_move_payload"
	CodeSelfChallenge      = "self_challenge"
	CodeForbidden          = "forbidden"
	CodeAlreadyInGame      = "already_in_game"
	CodeChallengePending   = "challenge_pending"
	CodeDrawOfferPending   = "draw_offer_pending"
	CodeNoDrawOffer        = "no_draw_offer"
	CodeNotYourTurn        = "not_your_turn"
	CodeIllegalMove        = "illegal_move"
	CodeSessionNotActive   = "session_not_active"
	CodeSessionNotFinished = "session_not_finished"
	CodeSessionNotFound    = "session_not_found"
	CodeChallengeNotFound  = "challenge_not_found"
	CodeUserNotFound       = "user_not_found"
	CodeUnknownRequest     = "unknown_request"
	CodeInternal           = "internal"
)

var ErrUserNotFound = errors.New("user not found")

// Error is a coded rejection. Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type classified struct {
	err  error
	kind Kind
	code string
}

var table = []classified{
	{game.ErrInvalidArgs, KindValidation, CodeBadRequest},
	{game.ErrNotFound, KindNotFound, CodeSessionNotFound},
	{game.ErrNotParticipant, KindForbidden, CodeForbidden},
	{game.ErrNotActive, KindConflict, CodeSessionNotActive},
	{game.ErrNotFinished, KindConflict, CodeSessionNotFinished},
	{game.ErrNotYourTurn, KindConflict, CodeNotYourTurn},
	{game.ErrBadMove, KindValidation, CodeBadMovePayload},
	{game.ErrIllegalMove, KindValidation, CodeIllegalMove},
	{game.ErrDrawOfferPending, KindConflict, CodeDrawOfferPending},
	{game.ErrNoDrawOffer, KindConflict, CodeNoDrawOffer},
	{game.ErrParticipantBusy, KindConflict, CodeAlreadyInGame},
	{challenge.ErrInvalidArgs, KindValidation, CodeBadRequest},
	{challenge.ErrSelfChallenge, KindValidation, CodeSelfChallenge},
	{challenge.ErrAlreadyPending, KindConflict, CodeChallengePending},
	{challenge.ErrNotFound, KindNotFound, CodeChallengeNotFound},
	{challenge.ErrNotTarget, KindForbidden, CodeForbidden},
	{protocol.ErrBadFrame, KindValidation, CodeBadRequest},
	{protocol.ErrBadPayload, KindValidation, CodeBadRequest},
	{protocol.ErrBadMovePayload, KindValidation, CodeBadMovePayload},
	{protocol.ErrUnknownType, KindValidation, CodeUnknownRequest},
	{ErrUserNotFound, KindNotFound, CodeUserNotFound},
}

// classify maps package sentinels to a kind and code.
func classify(err error) (Kind, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, ae.Code
	}
	for _, c := range table {
		if errors.Is(err, c.err) {
			return c.kind, c.code
		}
	}
	return KindInternal, CodeInternal
}

// coded wraps err as an *Error with a catalog message.
func (c *Coordinator) coded(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	kind, code := classify(err)
	return &Error{Kind: kind, Code: code, Message: c.message(code), Err: err}
}

func (c *Coordinator) conflict(code string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: c.message(code)}
}

func (c *Coordinator) message(code string) string { return c.messages.Error(code) }
