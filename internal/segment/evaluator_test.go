package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"segflow/internal/model"
	"segflow/internal/testutil"
)

func TestEvaluateGlobalInsertsAndRemoves(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Create(&model.User{ID: "u1", Attributes: datatypes.JSON(`{"email":"u1@x"}`)}).Error)
	require.NoError(t, db.Create(&model.User{ID: "u2", Attributes: datatypes.JSON(`{"email":"u2@x"}`)}).Error)
	require.NoError(t, db.Create(&model.Segment{ID: "all", Evaluator: "SELECT id FROM users"}).Error)

	e := New()
	diff, err := e.EvaluateGlobal(context.Background(), db, "all")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, diff.Added)
	require.Empty(t, diff.Removed)

	var count int64
	require.NoError(t, db.Model(&model.SegmentMembership{}).Where("segment_id = ?", "all").Count(&count).Error)
	require.Equal(t, int64(2), count)

	require.NoError(t, db.Delete(&model.User{}, "id = ?", "u2").Error)
	diff, err = e.EvaluateGlobal(context.Background(), db, "all")
	require.NoError(t, err)
	require.Empty(t, diff.Added)
	require.Equal(t, []string{"u2"}, diff.Removed)
}

func TestEvaluateForUserFlipsMembership(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Create(&model.Segment{ID: "s", Evaluator: "SELECT id FROM users WHERE 1=1"}).Error)
	require.NoError(t, db.Create(&model.User{ID: "u1", Attributes: datatypes.JSON(`{"email":"u1@x"}`)}).Error)

	e := New()
	require.NoError(t, e.EvaluateForUser(context.Background(), db, "u1"))

	var count int64
	require.NoError(t, db.Model(&model.SegmentMembership{}).Where("segment_id = ? AND user_id = ?", "s", "u1").Count(&count).Error)
	require.Equal(t, int64(1), count)
}
