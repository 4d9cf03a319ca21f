package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

// Service holds the logic of reading and updating farmer profiles
type Service struct {
	store domain.ProfileStore
	now   func() time.Time
}

// NewService creates a profile service from a ProfileStore
func NewService(store domain.ProfileStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// GetUserProfile returns the stored profile or ErrProfileNotFound.
func (s *Service) GetUserProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	p, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

type UpdateInput struct {
	UserID     domain.UserID
	Username   string
	Location   string
	FieldSize  string
	CropsGrown []string
	Climate    string
}

// UpdateUserProfile replaces the profile. It is marked completed only when
// every field is filled in, so a half-filled profile never reaches prompts.
func (s *Service) UpdateUserProfile(ctx context.Context, in UpdateInput) (*domain.UserProfile, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	var crops []string
	for _, c := range in.CropsGrown {
		if c = strings.TrimSpace(c); c != "" {
			crops = append(crops, c)
		}
	}

	p := &domain.UserProfile{
		UserID:     in.UserID,
		Username:   strings.TrimSpace(in.Username),
		Location:   strings.TrimSpace(in.Location),
		FieldSize:  strings.TrimSpace(in.FieldSize),
		CropsGrown: crops,
		Climate:    strings.TrimSpace(in.Climate),
		UpdatedAt:  s.now(),
	}
	p.ProfileCompleted = p.Location != "" && p.FieldSize != "" && len(p.CropsGrown) > 0 && p.Climate != ""

	if err := s.store.SaveUserProfile(ctx, p); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save profile", "user_id", in.UserID, "error", err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info("profile updated",
		"user_id", in.UserID,
		"completed", p.ProfileCompleted)
	return p, nil
}
