package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"lessonbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStateRepo struct {
	err error
}

func (f *failingStateRepo) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	return nil, f.err
}

func (f *failingStateRepo) SetState(ctx context.Context, state *models.UserState) error {
	return f.err
}

func (f *failingStateRepo) ClearState(ctx context.Context, userID int64) error {
	return f.err
}

func (f *failingStateRepo) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return false, f.err
}

func TestFailoverFallsBackOnError(t *testing.T) {
	logger := zerolog.Nop()
	primary := &failingStateRepo{err: errors.New("connection refused")}
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, &models.UserState{UserID: 100, CurrentStep: "step"}))

	// After the first failure the repository routes straight to the fallback.
	assert.True(t, repo.isDown.Load())

	state, err := repo.GetState(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "step", state.CurrentStep)
}

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	logger := zerolog.Nop()
	primary := NewMemoryStateRepository(time.Hour)
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, &models.UserState{UserID: 100, CurrentStep: "primary"}))

	// The state landed in the primary, not the fallback.
	state, err := primary.GetState(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, state)

	state, err = fallback.GetState(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, state)
}
