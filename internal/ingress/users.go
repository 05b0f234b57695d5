package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/model"
	"segflow/pkg/errutil"
)

// CreateUser inserts a new user and reevaluates segment and campaign
// membership for it. attrs must contain a non-empty "email" string.
func (s *Services) CreateUser(ctx context.Context, id string, attrs map[string]any) error {
	if err := requireEmail(attrs); err != nil {
		return err
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("ingress: marshal user attributes: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		row := model.User{ID: id, Attributes: datatypes.JSON(payload)}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("ingress: create user %q: %w", id, err)
		}
		return s.reevaluateUser(ctx, tx, id)
	})
}

// UpdateUser shallow-merges partial into the user's existing attributes and
// reevaluates membership.
func (s *Services) UpdateUser(ctx context.Context, id string, partial map[string]any) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row model.User
		if err := tx.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return notFoundOrWrap(err, "user", id)
		}

		var attrs map[string]any
		if err := json.Unmarshal(row.Attributes, &attrs); err != nil {
			return fmt.Errorf("ingress: decode user %q attributes: %w", id, err)
		}
		if attrs == nil {
			attrs = map[string]any{}
		}
		for k, v := range partial {
			attrs[k] = v
		}
		if err := requireEmail(attrs); err != nil {
			return err
		}

		payload, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("ingress: marshal user %q attributes: %w", id, err)
		}
		if err := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
			Update("attributes", datatypes.JSON(payload)).Error; err != nil {
			return fmt.Errorf("ingress: update user %q: %w", id, err)
		}
		return s.reevaluateUser(ctx, tx, id)
	})
}

// GetUser returns id's decoded attribute document.
func (s *Services) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var row model.User
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOrWrap(err, "user", id)
	}
	var attrs map[string]any
	if err := json.Unmarshal(row.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("ingress: decode user %q attributes: %w", id, err)
	}
	return attrs, nil
}

// DeleteUser cascades to the user's events, segment/campaign memberships,
// and executions.
func (s *Services) DeleteUser(ctx context.Context, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var executions []model.Execution
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Find(&executions).Error; err != nil {
			return fmt.Errorf("ingress: load executions for user %q: %w", id, err)
		}
		for _, e := range executions {
			if err := s.executions.Terminate(ctx, tx, id, e.CampaignID, "User deleted"); err != nil {
				return fmt.Errorf("ingress: terminate execution %q/%q: %w", id, e.CampaignID, err)
			}
		}
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Delete(&model.ExecutionHistoryStep{}).Error; err != nil {
			return fmt.Errorf("ingress: delete history for user %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Delete(&model.Execution{}).Error; err != nil {
			return fmt.Errorf("ingress: delete executions for user %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Delete(&model.CampaignMembership{}).Error; err != nil {
			return fmt.Errorf("ingress: delete campaign memberships for user %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Delete(&model.SegmentMembership{}).Error; err != nil {
			return fmt.Errorf("ingress: delete segment memberships for user %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("user_id = ?", id).Delete(&model.Event{}).Error; err != nil {
			return fmt.Errorf("ingress: delete events for user %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Delete(&model.User{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("ingress: delete user %q: %w", id, err)
		}
		return nil
	})
}

func (s *Services) reevaluateUser(ctx context.Context, tx *gorm.DB, userID string) error {
	if err := s.segments.EvaluateForUser(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := s.membership.ReevaluateForUser(ctx, tx, userID); err != nil {
		return err
	}
	return nil
}

func requireEmail(attrs map[string]any) error {
	email, ok := attrs["email"].(string)
	if !ok || email == "" {
		return errutil.ValidationFailed("attributes.email is required", nil)
	}
	return nil
}

func notFoundOrWrap(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errutil.NotFound(fmt.Sprintf("%s %q not found", kind, id), nil)
	}
	return fmt.Errorf("ingress: load %s %q: %w", kind, id, err)
}
