package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldwise/agrichat/internal/domain"
)

// ProfileStore is a simple in-memory implementation of domain.ProfileStore.
// It is NOT persistent and is only suitable for development / local mode.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]*domain.UserProfile
	now      func() time.Time
}

// NewProfileStore creates a new in-memory ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[domain.UserID]*domain.UserProfile),
		now:      time.Now,
	}
}

// GetUserProfile returns a copy of the stored profile, or nil if the user
// has none.
func (s *ProfileStore) GetUserProfile(_ context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}

	cp := *p
	cp.CropsGrown = append([]string(nil), p.CropsGrown...)
	return &cp, nil
}

// SaveUserProfile creates or replaces the profile.
func (s *ProfileStore) SaveUserProfile(_ context.Context, profile *domain.UserProfile) error {
	if profile == nil || profile.UserID == "" {
		return errors.New("save profile: user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	cp.CropsGrown = append([]string(nil), profile.CropsGrown...)
	cp.UpdatedAt = s.now()
	s.profiles[profile.UserID] = &cp
	return nil
}
