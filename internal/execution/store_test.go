package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"segflow/internal/model"
	"segflow/internal/testutil"
)

func TestCreateAndClaimDue(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, db, "u1", "c1"))

	claimed, err := s.ClaimDue(ctx, db, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, model.ExecutionRunning, claimed[0].Status)

	again, err := s.ClaimDue(ctx, db, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestSleepUntilThenClaimRespectsDeadline(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, db, "u1", "c1"))

	future := time.Now().Add(time.Hour)
	require.NoError(t, s.SleepUntil(ctx, db, "u1", "c1", future))

	claimed, err := s.ClaimDue(ctx, db, time.Now(), 0)
	require.NoError(t, err)
	require.Empty(t, claimed)

	claimed, err = s.ClaimDue(ctx, db, future.Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestTerminateIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Terminate(ctx, db, "missing", "campaign", "no such execution"))
}

func TestCompleteRequiresExistingRow(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := New()
	err := s.Complete(context.Background(), db, "missing", "campaign")
	require.Error(t, err)
}
