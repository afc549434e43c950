package storage

import (
	"context"
	"errors"
	"sync"

	"music_police/internal/model"
)

// ErrTeamNotFound is returned when no credential has been stored for a team
var ErrTeamNotFound = errors.New("team not found")

// TeamStore defines the interface for team credential storage operations
type TeamStore interface {
	GetTeam(ctx context.Context, teamID string) (model.TeamCredential, error)
	PutTeam(ctx context.Context, cred model.TeamCredential) error
}

// MemoryTeamStore keeps credentials in process memory. Everything is lost on restart.
type MemoryTeamStore struct {
	mu    sync.RWMutex
	teams map[string]model.TeamCredential
}

// NewMemoryTeamStore creates an empty MemoryTeamStore
func NewMemoryTeamStore() *MemoryTeamStore {
	return &MemoryTeamStore{teams: make(map[string]model.TeamCredential)}
}

func (s *MemoryTeamStore) GetTeam(_ context.Context, teamID string) (model.TeamCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.teams[teamID]
	if !ok {
		return model.TeamCredential{}, ErrTeamNotFound
	}
	return cred, nil
}

func (s *MemoryTeamStore) PutTeam(_ context.Context, cred model.TeamCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[cred.TeamID] = cred
	return nil
}
