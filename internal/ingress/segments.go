package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"segflow/internal/model"
	"segflow/internal/segment"
	"segflow/pkg/errutil"
)

// CreateSegment inserts a new segment, derives its event triggers, and
// evaluates it globally, fanning out to campaign membership.
func (s *Services) CreateSegment(ctx context.Context, id, evaluator string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&model.Segment{ID: id, Evaluator: evaluator}).Error; err != nil {
			return fmt.Errorf("ingress: create segment %q: %w", id, err)
		}
		return s.applySegmentChange(ctx, tx, id, evaluator)
	})
}

// UpdateSegment replaces a segment's SQL and reevaluates it globally.
func (s *Services) UpdateSegment(ctx context.Context, id, evaluator string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&model.Segment{}).Where("id = ?", id).Update("evaluator", evaluator)
		if res.Error != nil {
			return fmt.Errorf("ingress: update segment %q: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound(fmt.Sprintf("segment %q not found", id), nil)
		}
		return s.applySegmentChange(ctx, tx, id, evaluator)
	})
}

// DeleteSegment removes a segment, rejecting the delete if any campaign
// still references it.
func (s *Services) DeleteSegment(ctx context.Context, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Match the JSON-quoted id so that ids merely containing id do not count.
		quoted, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("ingress: encode segment id %q: %w", id, err)
		}
		pattern := "%" + string(quoted) + "%"
		var count int64
		if err := tx.WithContext(ctx).Model(&model.Campaign{}).
			Where("segments LIKE ? OR exclude_segments LIKE ?", pattern, pattern).
			Count(&count).Error; err != nil {
			return fmt.Errorf("ingress: check segment %q references: %w", id, err)
		}
		if count > 0 {
			return errutil.Conflict(fmt.Sprintf("segment %q is referenced by a campaign", id), nil)
		}
		if err := tx.WithContext(ctx).Where("segment_id = ?", id).Delete(&model.SegmentMembership{}).Error; err != nil {
			return fmt.Errorf("ingress: delete memberships for segment %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("segment_id = ?", id).Delete(&model.SegmentEventTrigger{}).Error; err != nil {
			return fmt.Errorf("ingress: delete triggers for segment %q: %w", id, err)
		}
		res := tx.WithContext(ctx).Delete(&model.Segment{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("ingress: delete segment %q: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound(fmt.Sprintf("segment %q not found", id), nil)
		}
		return nil
	})
}

// GetSegment loads a single segment.
func (s *Services) GetSegment(ctx context.Context, id string) (*model.Segment, error) {
	var row model.Segment
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOrWrap(err, "segment", id)
	}
	return &row, nil
}

// ListSegments returns every segment.
func (s *Services) ListSegments(ctx context.Context) ([]model.Segment, error) {
	var rows []model.Segment
	err := s.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

// ListSegmentUsers returns the ids of users currently matching a segment.
func (s *Services) ListSegmentUsers(ctx context.Context, segmentID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.SegmentMembership{}).
		Where("segment_id = ?", segmentID).Pluck("user_id", &ids).Error
	return ids, err
}

// ListUserSegments returns the ids of segments a user currently matches.
func (s *Services) ListUserSegments(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.SegmentMembership{}).
		Where("user_id = ?", userID).Pluck("segment_id", &ids).Error
	return ids, err
}

func (s *Services) applySegmentChange(ctx context.Context, tx *gorm.DB, id, evaluator string) error {
	if err := tx.WithContext(ctx).Where("segment_id = ?", id).Delete(&model.SegmentEventTrigger{}).Error; err != nil {
		return fmt.Errorf("ingress: clear triggers for segment %q: %w", id, err)
	}
	names := segment.TriggerNames(evaluator)
	if len(names) > 0 {
		rows := make([]model.SegmentEventTrigger, len(names))
		for i, name := range names {
			rows[i] = model.SegmentEventTrigger{SegmentID: id, Event: name}
		}
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			return fmt.Errorf("ingress: write triggers for segment %q: %w", id, err)
		}
	}

	diff, err := s.segments.EvaluateGlobal(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := s.membership.ReevaluateForSegmentChange(ctx, tx, id, diff.Added, diff.Removed); err != nil {
		return err
	}
	return nil
}
