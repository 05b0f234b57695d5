package configset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"segflow/internal/execution"
	"segflow/internal/membership"
	"segflow/internal/model"
	"segflow/internal/segment"
	"segflow/internal/testutil"
)

func newReconciler() *Reconciler {
	executions := execution.New()
	return New(segment.New(), membership.New(executions), executions)
}

func TestPushWithNoOperationsReturnsNoChanges(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := newReconciler()

	result, err := r.Push(context.Background(), db, Config{})
	require.NoError(t, err)
	require.True(t, result.NoChanges)

	var count int64
	require.NoError(t, db.Model(&model.Config{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestPushCreatesSegmentAndSeedsCampaignMembership(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := newReconciler()
	ctx := context.Background()

	require.NoError(t, db.Create(&model.User{ID: "u1", Attributes: []byte(`{"email":"u1@example.com"}`)}).Error)

	cfg := Config{
		Templates: []TemplateInput{{ID: "t1", Subject: "<%= user.attributes.email %>", HTML: "<p>hi</p>"}},
		Segments:  []SegmentInput{{ID: "all", Evaluator: "SELECT id FROM users"}},
		Campaigns: []CampaignInput{{ID: "c1", Flow: "function*(ctx){}", Behavior: "static", Segments: []string{"all"}}},
	}

	result, err := r.Push(ctx, db, cfg)
	require.NoError(t, err)
	require.False(t, result.NoChanges)
	require.NotZero(t, result.ConfigID)

	var membershipCount int64
	require.NoError(t, db.Model(&model.CampaignMembership{}).Where("user_id = ? AND campaign_id = ?", "u1", "c1").Count(&membershipCount).Error)
	require.Equal(t, int64(1), membershipCount)

	var exec model.Execution
	require.NoError(t, db.First(&exec, "user_id = ? AND campaign_id = ?", "u1", "c1").Error)
	require.Equal(t, model.ExecutionPending, exec.Status)

	second, err := r.Push(ctx, db, cfg)
	require.NoError(t, err)
	require.True(t, second.NoChanges)
}

func TestPushRejectsCampaignUpdate(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := newReconciler()
	ctx := context.Background()

	base := Config{
		Segments:  []SegmentInput{{ID: "all", Evaluator: "SELECT id FROM users"}},
		Campaigns: []CampaignInput{{ID: "c1", Flow: "function*(ctx){}", Behavior: "static", Segments: []string{"all"}}},
	}
	_, err := r.Push(ctx, db, base)
	require.NoError(t, err)

	changed := base
	changed.Campaigns = []CampaignInput{{ID: "c1", Flow: "function*(ctx){ yield 1 }", Behavior: "static", Segments: []string{"all"}}}
	_, err = r.Push(ctx, db, changed)
	require.Error(t, err)
}

func TestPushRejectsDeletingSegmentReferencedByCampaign(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := newReconciler()
	ctx := context.Background()

	base := Config{
		Segments:  []SegmentInput{{ID: "all", Evaluator: "SELECT id FROM users"}},
		Campaigns: []CampaignInput{{ID: "c1", Flow: "function*(ctx){}", Behavior: "static", Segments: []string{"all"}}},
	}
	_, err := r.Push(ctx, db, base)
	require.NoError(t, err)

	withoutSegment := base
	withoutSegment.Segments = nil
	_, err = r.Push(ctx, db, withoutSegment)
	require.Error(t, err)
}
