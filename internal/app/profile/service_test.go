package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrichat/internal/adapters/storage/memory"
	"github.com/fieldwise/agrichat/internal/app/profile"
	"github.com/fieldwise/agrichat/internal/domain"
)

func TestUpdateAndGetProfile(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(memory.NewProfileStore())

	_, err := svc.GetUserProfile(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	p, err := svc.UpdateUserProfile(ctx, profile.UpdateInput{
		UserID:     "u1",
		Username:   "Ravi",
		Location:   "Punjab",
		FieldSize:  "12 acres",
		CropsGrown: []string{"wheat", " ", "rice "},
		Climate:    "Sub-tropical",
	})
	require.NoError(t, err)
	assert.True(t, p.ProfileCompleted)
	assert.Equal(t, []string{"wheat", "rice"}, p.CropsGrown)

	got, err := svc.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Punjab", got.Location)
}

func TestPartialProfileIsNotCompleted(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(memory.NewProfileStore())

	p, err := svc.UpdateUserProfile(ctx, profile.UpdateInput{UserID: "u1", Location: "Punjab"})
	require.NoError(t, err)
	assert.False(t, p.ProfileCompleted)
	assert.False(t, p.Complete())

	_, err = svc.UpdateUserProfile(ctx, profile.UpdateInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
