package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/model"
)

// EmitEvent inserts an event row for userID, fast-path reevaluates the
// segments whose triggers mention name, reevaluates campaign membership,
// and (best-effort, after commit) enqueues a transactional-email dispatch.
func (s *Services) EmitEvent(ctx context.Context, userID, name string, attrs map[string]any) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("ingress: marshal event attributes: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&model.Event{
			Name: name, UserID: userID, Attributes: datatypes.JSON(payload),
		}).Error; err != nil {
			return fmt.Errorf("ingress: insert event %q for user %q: %w", name, userID, err)
		}
		if err := s.segments.EvaluateForUserOnEvent(ctx, tx, userID, name); err != nil {
			return err
		}
		if _, err := s.membership.ReevaluateForUser(ctx, tx, userID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.dispatcher.Enqueue(ctx, userID, name, attrs); err != nil {
		s.log.Warn("ingress: enqueue transactional email failed",
			zap.String("user_id", userID), zap.String("event", name), zap.Error(err))
	}
	return nil
}

// ListEvents returns userID's events, most recent first.
func (s *Services) ListEvents(ctx context.Context, userID string) ([]model.Event, error) {
	var events []model.Event
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&events).Error
	return events, err
}
