package arena

import (
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/protocol"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Dispatch executes one inbound request for userID on connID. Rejections are
// reported to that connection only; conflicts and illegal moves also resend
// the caller's view of the session.
func (c *Coordinator) Dispatch(connID, userID string, req protocol.Request) error {
	var (
		err       error
		sessionID string
	)
	switch r := req.(type) {
	case protocol.SubmitMove:
		sessionID = r.SessionID
		err = c.SubmitMove(userID, r.SessionID, r.From, r.To, r.Promotion)
	case protocol.OfferDraw:
		sessionID = r.SessionID
		err = c.OfferDraw(userID, r.SessionID)
	case protocol.RespondDraw:
		sessionID = r.SessionID
		err = c.RespondDraw(userID, r.SessionID, r.Accept)
	case protocol.Resign:
		sessionID = r.SessionID
		err = c.Resign(userID, r.SessionID)
	case protocol.OfferRematch:
		sessionID = r.SessionID
		err = c.OfferRematch(userID, r.SessionID)
	case protocol.JoinQueue:
		err = c.JoinQueue(userID)
	case protocol.LeaveQueue:
		err = c.LeaveQueue(userID)
	case protocol.CreateChallenge:
		_, err = c.CreateChallenge(userID, r.ToUserID)
	case protocol.RespondChallenge:
		_, err = c.RespondChallenge(userID, r.ChallengeID, r.Accept)
	default:
		err = protocol.ErrUnknownType
	}
	if err == nil {
		return nil
	}
	ae := c.Reject(connID, userID, err)
	if sessionID != "" && (ae.Kind == KindConflict || ae.Code == CodeIllegalMove) {
		c.resync(connID, userID, sessionID)
	}
	return ae
}

// Reject reports err to one connection as an error frame.
func (c *Coordinator) Reject(connID, userID string, err error) *Error {
	ae := c.coded(err)
	c.metrics.RequestRejected(ae.Code)
	if ae.Kind == KindInternal {
		c.log.Error("arena_request_failed", zap.String("user_id", userID), zap.Error(err))
	} else {
		c.log.Debug("arena_request_rejected", zap.String("user_id", userID), zap.String("code", ae.Code))
	}
	c.notify.ToConn(connID, arenadto.Event{Type: arenadto.EventError, Payload: arenadto.Error{Code: ae.Code, Message: ae.Message}})
	return ae
}
