package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"segflow/internal/execution"
	"segflow/internal/model"
	"segflow/internal/testutil"
)

func TestStaticCampaignIsMonotone(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Segment{ID: "active", Evaluator: "SELECT id FROM users WHERE 1=1"}).Error)
	require.NoError(t, db.Create(&model.Campaign{
		ID: "c", Behavior: model.CampaignStatic,
		Flow:     "function*(ctx,rt){}",
		Segments: datatypes.JSON(`["active"]`), ExcludeSegments: datatypes.JSON(`[]`),
	}).Error)
	require.NoError(t, db.Create(&model.SegmentMembership{UserID: "u1", SegmentID: "active"}).Error)

	r := New(execution.New())
	changes, err := r.ReevaluateForUser(ctx, db, "u1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.True(t, changes[0].Added)

	require.NoError(t, db.Delete(&model.SegmentMembership{}, "user_id = ? AND segment_id = ?", "u1", "active").Error)
	changes, err = r.ReevaluateForUser(ctx, db, "u1")
	require.NoError(t, err)
	require.Empty(t, changes)

	var count int64
	require.NoError(t, db.Model(&model.CampaignMembership{}).Where("user_id = ? AND campaign_id = ?", "u1", "c").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestDynamicCampaignTracksMatchExactly(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Segment{ID: "active", Evaluator: "SELECT id FROM users WHERE 1=1"}).Error)
	require.NoError(t, db.Create(&model.Campaign{
		ID: "c", Behavior: model.CampaignDynamic,
		Flow:     "function*(ctx,rt){}",
		Segments: datatypes.JSON(`["active"]`), ExcludeSegments: datatypes.JSON(`[]`),
	}).Error)
	require.NoError(t, db.Create(&model.SegmentMembership{UserID: "u1", SegmentID: "active"}).Error)

	r := New(execution.New())
	_, err := r.ReevaluateForUser(ctx, db, "u1")
	require.NoError(t, err)

	require.NoError(t, db.Delete(&model.SegmentMembership{}, "user_id = ? AND segment_id = ?", "u1", "active").Error)
	changes, err := r.ReevaluateForUser(ctx, db, "u1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.False(t, changes[0].Added)

	var count int64
	require.NoError(t, db.Model(&model.CampaignMembership{}).Where("user_id = ? AND campaign_id = ?", "u1", "c").Count(&count).Error)
	require.Equal(t, int64(0), count)

	var exec model.Execution
	require.NoError(t, db.First(&exec, "user_id = ? AND campaign_id = ?", "u1", "c").Error)
	require.Equal(t, model.ExecutionTerminated, exec.Status)
}
