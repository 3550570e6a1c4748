package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadFrame       = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown request type")
	ErrBadPayload     = errors.New("invalid request payload")
	ErrBadMovePayload = errors.New("invalid move payload")
)

// Inbound request types.
const (
	TypeSubmitMove       = "submit-move"
	TypeOfferDraw        = "offer-draw"
	TypeRespondDraw      = "respond-draw"
	TypeResign           = "resign"
	TypeOfferRematch     = "offer-rematch"
	TypeJoinQueue        = "join-queue"
	TypeLeaveQueue       = "leave-queue"
	TypeCreateChallenge  = "create-challenge"
	TypeRespondChallenge = "respond-challenge"
)

// Frame is the envelope every websocket message uses.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request is one of the closed set of inbound requests.
type Request interface {
	RequestType() string
}

type SubmitMove struct {
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type OfferDraw struct {
	SessionID string `json:"sessionId"`
}

type RespondDraw struct {
	SessionID string `json:"sessionId"`
	Accept    bool   `json:"accept"`
}

type Resign struct {
	SessionID string `json:"sessionId"`
}

type OfferRematch struct {
	SessionID string `json:"sessionId"`
}

type JoinQueue struct{}

type LeaveQueue struct{}

type CreateChallenge struct {
	ToUserID string `json:"toUserId"`
}

type RespondChallenge struct {
	ChallengeID string `json:"challengeId"`
	Accept      bool   `json:"accept"`
}

func (SubmitMove) RequestType() string       { return TypeSubmitMove }
func (OfferDraw) RequestType() string        { return TypeOfferDraw }
func (RespondDraw) RequestType() string      { return TypeRespondDraw }
func (Resign) RequestType() string           { return TypeResign }
func (OfferRematch) RequestType() string     { return TypeOfferRematch }
func (JoinQueue) RequestType() string        { return TypeJoinQueue }
func (LeaveQueue) RequestType() string       { return TypeLeaveQueue }
func (CreateChallenge) RequestType() string  { return TypeCreateChallenge }
func (RespondChallenge) RequestType() string { return TypeRespondChallenge }

// Decode parses a raw websocket message.
func Decode(data []byte) (Request, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return Parse(f)
}

// Parse maps a frame onto a typed request, validating required fields.
func Parse(f Frame) (Request, error) {
	switch f.Type {
	case TypeSubmitMove:
		var p SubmitMove
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadMovePayload
		}
		p.SessionID = strings.TrimSpace(p.SessionID)
		p.From = strings.ToLower(strings.TrimSpace(p.From))
		p.To = strings.ToLower(strings.TrimSpace(p.To))
		p.Promotion = strings.ToLower(strings.TrimSpace(p.Promotion))
		if p.SessionID == "" || p.From == "" || p.To == "" {
			return nil, ErrBadMovePayload
		}
		return p, nil
	case TypeOfferDraw:
		var p OfferDraw
		if err := needSession(f.Payload, &p, &p.SessionID); err != nil {
			return nil, err
		}
		return p, nil
	case TypeRespondDraw:
		var p struct {
			SessionID string `json:"sessionId"`
			Accept    *bool  `json:"accept"`
		}
		if err := needSession(f.Payload, &p, &p.SessionID); err != nil {
			return nil, err
		}
		if p.Accept == nil {
			return nil, ErrBadPayload
		}
		return RespondDraw{SessionID: p.SessionID, Accept: *p.Accept}, nil
	case TypeResign:
		var p Resign
		if err := needSession(f.Payload, &p, &p.SessionID); err != nil {
			return nil, err
		}
		return p, nil
	case TypeOfferRematch:
		var p OfferRematch
		if err := needSession(f.Payload, &p, &p.SessionID); err != nil {
			return nil, err
		}
		return p, nil
	case TypeJoinQueue:
		return JoinQueue{}, nil
	case TypeLeaveQueue:
		return LeaveQueue{}, nil
	case TypeCreateChallenge:
		var p CreateChallenge
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		p.ToUserID = strings.TrimSpace(p.ToUserID)
		if p.ToUserID == "" {
			return nil, ErrBadPayload
		}
		return p, nil
	case TypeRespondChallenge:
		var p struct {
			ChallengeID string `json:"challengeId"`
			Accept      *bool  `json:"accept"`
		}
		if err := unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		p.ChallengeID = strings.TrimSpace(p.ChallengeID)
		if p.ChallengeID == "" || p.Accept == nil {
			return nil, ErrBadPayload
		}
		return RespondChallenge{ChallengeID: p.ChallengeID, Accept: *p.Accept}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return ErrBadPayload
	}
	return json.Unmarshal(raw, v)
}

func needSession(raw json.RawMessage, v any, id *string) error {
	if err := unmarshal(raw, v); err != nil {
		return ErrBadPayload
	}
	*id = strings.TrimSpace(*id)
	if *id == "" {
		return ErrBadPayload
	}
	return nil
}
