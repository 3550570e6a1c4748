package challenge

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrAlreadyPending = errors.New("a pending challenge already exists between these users")
	ErrNotFound       = errors.New("challenge not found")
	ErrNotTarget      = errors.New("challenge is addressed to another user")
)

const DefaultTTL = 60 * time.Second

// Broker holds direct challenges. Expiry is a stored deadline checked lazily and by Sweep.
// Not safe for concurrent use.
type Broker struct {
	byID  map[string]*domain.Challenge
	ttl   time.Duration
	newID func() string
}

// NewBroker builds a broker; newID defaults to uuid.NewString.
func NewBroker(ttl time.Duration, newID func() string) *Broker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Broker{byID: make(map[string]*domain.Challenge), ttl: ttl, newID: newID}
}

func (b *Broker) TTL() time.Duration { return b.ttl }

// Create registers a pending challenge from -> to.
func (b *Broker) Create(from, to string, now time.Time) (*domain.Challenge, error) {
	if from == "" || to == "" {
		return nil, ErrInvalidArgs
	}
	if from == to {
		return nil, ErrSelfChallenge
	}

	b.sweep(now)
	for _, ch := range b.byID {
		if ch.Status != domain.ChallengePending {
			continue
		}
		if (ch.FromUserID == from && ch.ToUserID == to) || (ch.FromUserID == to && ch.ToUserID == from) {
			return nil, ErrAlreadyPending
		}
	}
	ch := &domain.Challenge{
		ID:         b.newID(),
		FromUserID: from,
		ToUserID:   to,
		Status:     domain.ChallengePending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.ttl),
	}
	b.byID[ch.ID] = ch
	cp := *ch
	return &cp, nil
}

// Respond resolves a pending challenge addressed to by. The challenge is removed
// either way; the returned copy carries the final status.
func (b *Broker) Respond(id, by string, accept bool, now time.Time) (*domain.Challenge, error) {
	b.sweep(now)
	ch, ok := b.byID[id]
	if !ok || ch.Status != domain.ChallengePending {
		return nil, ErrNotFound
	}
	if ch.ToUserID != by {
		return nil, ErrNotTarget
	}
	delete(b.byID, id)
	cp := *ch
	if accept {
		cp.Status = domain.ChallengeAccepted
	} else {
		cp.Status = domain.ChallengeDeclined
	}
	return &cp, nil
}

// Sweep purges expired and resolved challenges and returns what it removed.
func (b *Broker) Sweep(now time.Time) []domain.Challenge {
	return b.sweep(now)
}

func (b *Broker) sweep(now time.Time) []domain.Challenge {
	var removed []domain.Challenge
	for id, ch := range b.byID {
		if ch.Status != domain.ChallengePending || ch.Expired(now) {
			removed = append(removed, *ch)
			delete(b.byID, id)
		}
	}
	return removed
}

// ClearUser drops every challenge involving userID.
func (b *Broker) ClearUser(userID string) int {
	n := 0
	for id, ch := range b.byID {
		if ch.FromUserID == userID || ch.ToUserID == userID {
			delete(b.byID, id)
			n++
		}
	}
	return n
}

// Pending lists live challenges sent by or addressed to userID, oldest first.
func (b *Broker) Pending(userID string, now time.Time) []domain.Challenge {
	var out []domain.Challenge
	for _, ch := range b.byID {
		if ch.Status != domain.ChallengePending || ch.Expired(now) {
			continue
		}
		if ch.FromUserID == userID || ch.ToUserID == userID {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
