package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/configset"
	"segflow/internal/model"
	"segflow/pkg/errutil"
)

// CreateCampaign inserts a campaign and seeds its initial membership from
// current segment truth.
func (s *Services) CreateCampaign(ctx context.Context, id, flow, behavior string, segments, excludeSegments []string) error {
	if len(segments) == 0 {
		return errutil.BadRequest("campaign must include at least one segment", nil)
	}

	includeJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("ingress: marshal segments for campaign %q: %w", id, err)
	}
	excludeJSON, err := json.Marshal(excludeSegments)
	if err != nil {
		return fmt.Errorf("ingress: marshal excludeSegments for campaign %q: %w", id, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		row := model.Campaign{
			ID: id, Flow: flow, Behavior: model.CampaignBehavior(behavior),
			Segments: datatypes.JSON(includeJSON), ExcludeSegments: datatypes.JSON(excludeJSON),
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("ingress: create campaign %q: %w", id, err)
		}
		return configset.SeedCampaignMembership(ctx, tx, s.executions, id, segments, excludeSegments)
	})
}

// DeleteCampaign terminates every live execution for the campaign and
// removes it and its dependent rows.
func (s *Services) DeleteCampaign(ctx context.Context, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := configset.DeleteCampaignCascade(ctx, tx, s.executions, id); err != nil {
			return err
		}
		res := tx.WithContext(ctx).Delete(&model.Campaign{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("ingress: delete campaign %q: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound(fmt.Sprintf("campaign %q not found", id), nil)
		}
		return nil
	})
}

// GetCampaign loads a single campaign.
func (s *Services) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var row model.Campaign
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOrWrap(err, "campaign", id)
	}
	return &row, nil
}

// ListCampaigns returns every campaign.
func (s *Services) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var rows []model.Campaign
	err := s.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}
