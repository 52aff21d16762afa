package loginlimit

import (
	"context"
	"testing"
	"time"

	"ltiuy-backend/lib/testutil"
	"ltiuy-backend/services/loginlimit/db"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *Service {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "loginlimit",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewService(result.DB, DefaultOptions())
}

func TestBlockAfterThreeFailures(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	blocked, err := svc.RecordFailure(ctx, "alguien")
	require.NoError(t, err)
	require.False(t, blocked)
	require.NoError(t, svc.Check(ctx, "alguien"))

	blocked, err = svc.RecordFailure(ctx, "alguien")
	require.NoError(t, err)
	require.False(t, blocked)

	blocked, err = svc.RecordFailure(ctx, "alguien")
	require.NoError(t, err)
	require.True(t, blocked)

	err = svc.Check(ctx, "alguien")
	require.ErrorIs(t, err, ErrBlocked)
}

func TestBlockExpires(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordFailure(ctx, "alguien")
		require.NoError(t, err)
	}
	require.ErrorIs(t, svc.Check(ctx, "alguien"), ErrBlocked)

	svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	require.NoError(t, svc.Check(ctx, "alguien"))

	// counter starts fresh after the block clears
	blocked, err := svc.RecordFailure(ctx, "alguien")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestSuccessClearsCounter(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.RecordFailure(ctx, "alguien")
		require.NoError(t, err)
	}
	require.NoError(t, svc.RecordSuccess(ctx, "alguien"))

	blocked, err := svc.RecordFailure(ctx, "alguien")
	require.NoError(t, err)
	require.False(t, blocked)
	require.NoError(t, svc.Check(ctx, "alguien"))
}

func TestUsernameNormalization(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordFailure(ctx, "Alguien@utec.edu.uy")
		require.NoError(t, err)
	}
	require.ErrorIs(t, svc.Check(ctx, " alguien@utec.edu.uy"), ErrBlocked)
	require.NoError(t, svc.Check(ctx, "otra-persona"))
}

func TestUserMessage(t *testing.T) {
	require.Contains(t, UserMessage(ErrBlocked), "Demasiados intentos")
	require.Empty(t, UserMessage(nil))
}
