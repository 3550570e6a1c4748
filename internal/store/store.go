package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/cheese-arena/internal/domain"
)

var ErrNilState = errors.New("state is nil")

// State is the whole durable dataset. It is always read and written in one piece.
type State struct {
	Users    []*domain.User    `json:"users"`
	Stats    []*domain.Stats   `json:"stats"`
	Sessions []*domain.Session `json:"sessions"`
}

// Empty returns a State with non-nil collections.
func Empty() *State {
	return &State{Users: []*domain.User{}, Stats: []*domain.Stats{}, Sessions: []*domain.Session{}}
}

func (s *State) normalize() *State {
	if s.Users == nil {
		s.Users = []*domain.User{}
	}
	if s.Stats == nil {
		s.Stats = []*domain.Stats{}
	}
	if s.Sessions == nil {
		s.Sessions = []*domain.Session{}
	}
	return s
}

// Store persists State with atomic whole-state overwrite semantics.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
	Close() error
}

// Open selects a backend by name: "file" (default) or "redis".
func Open(ctx context.Context, backend, filePath, redisURL, redisKey string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(filePath)
	case "redis":
		return NewRedisStore(ctx, redisURL, redisKey)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
