package arenadto

// Outbound event types.
const (
	EventQueueSnapshot     = "queue-snapshot"
	EventPresenceSnapshot  = "presence-snapshot"
	EventChallengeIncoming = "challenge-incoming"
	EventChallengeCreated  = "challenge-created"
	EventChallengeDeclined = "challenge-declined"
	EventMatchFound        = "match-found"
	EventSessionState      = "session-state"
	EventMoveApplied       = "move-applied"
	EventSessionFinished   = "session-finished"
	EventDrawOffered       = "draw-offered"
	EventRematchOffered    = "rematch-offered"
	EventRematchAccepted   = "rematch-accepted"
	EventError             = "error"
)

// Event is one outbound frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
