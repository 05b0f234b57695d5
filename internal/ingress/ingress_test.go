package ingress

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"segflow/internal/configset"
	"segflow/internal/execution"
	"segflow/internal/mailer"
	"segflow/internal/membership"
	"segflow/internal/sandbox"
	"segflow/internal/segment"
	"segflow/internal/testutil"
)

func newServices(t *testing.T) *Services {
	t.Helper()
	db := testutil.NewTestDB(t)
	executions := execution.New()
	segments := segment.New()
	membershipResolver := membership.New(executions)
	sb := sandbox.New(0)
	// No live redis in tests: the dispatcher's Enqueue is only exercised
	// through EmitEvent, and a client with no reachable server still lets
	// EnqueueContext build and fail locally without panicking the test.
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	dispatcher := mailer.New(db, sb, client, zaptest.NewLogger(t))
	reconciler := configset.New(segments, membershipResolver, executions)
	return New(db, segments, membershipResolver, executions, dispatcher, reconciler, zaptest.NewLogger(t))
}

func TestCreateUserRequiresEmail(t *testing.T) {
	s := newServices(t)
	err := s.CreateUser(context.Background(), "u1", map[string]any{})
	require.Error(t, err)
}

func TestCreateAndUpdateUserMergesAttributes(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "u1", map[string]any{"email": "u1@example.com"}))
	require.NoError(t, s.UpdateUser(ctx, "u1", map[string]any{"plan": "pro"}))

	attrs, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1@example.com", attrs["email"])
	require.Equal(t, "pro", attrs["plan"])
}

func TestCreateSegmentSeedsMembership(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "u1", map[string]any{"email": "u1@example.com"}))
	require.NoError(t, s.CreateSegment(ctx, "all", "SELECT id FROM users"))

	users, err := s.ListSegmentUsers(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, users)
}

func TestDeleteSegmentRejectedWhenReferenced(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSegment(ctx, "all", "SELECT id FROM users"))
	require.NoError(t, s.CreateCampaign(ctx, "c1", "function*(ctx){}", "static", []string{"all"}, nil))

	err := s.DeleteSegment(ctx, "all")
	require.Error(t, err)
}

func TestDeleteUserCascades(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "u1", map[string]any{"email": "u1@example.com"}))
	require.NoError(t, s.CreateSegment(ctx, "all", "SELECT id FROM users"))
	require.NoError(t, s.CreateCampaign(ctx, "c1", "function*(ctx){}", "static", []string{"all"}, nil))

	require.NoError(t, s.DeleteUser(ctx, "u1"))

	users, err := s.ListSegmentUsers(ctx, "all")
	require.NoError(t, err)
	require.Empty(t, users)

	_, err = s.GetUser(ctx, "u1")
	require.Error(t, err)
}
