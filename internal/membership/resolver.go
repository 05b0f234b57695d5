// Package membership computes which campaigns a user belongs to given the
// current SegmentMembership truth, and drives Execution creation/
// termination as membership changes.
package membership

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"segflow/internal/execution"
	"segflow/internal/model"
)

const reevaluateBatchSize = 100

// Change describes one membership add or remove for one campaign.
type Change struct {
	CampaignID string
	UserID     string
	Added      bool
}

// Resolver recomputes CampaignMembership against segment truth.
type Resolver struct {
	executions *execution.Store
}

func New(executions *execution.Store) *Resolver {
	return &Resolver{executions: executions}
}

// Matches reports whether user currently satisfies campaign's include/
// exclude segment sets, per current SegmentMembership rows.
func (r *Resolver) Matches(ctx context.Context, tx *gorm.DB, userID string, campaign model.Campaign) (bool, error) {
	include, exclude, err := decodeSegmentSets(campaign)
	if err != nil {
		return false, err
	}
	for _, segmentID := range include {
		member, err := isMember(ctx, tx, userID, segmentID)
		if err != nil {
			return false, err
		}
		if !member {
			return false, nil
		}
	}
	for _, segmentID := range exclude {
		member, err := isMember(ctx, tx, userID, segmentID)
		if err != nil {
			return false, err
		}
		if member {
			return false, nil
		}
	}
	return true, nil
}

func isMember(ctx context.Context, tx *gorm.DB, userID, segmentID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.SegmentMembership{}).
		Where("user_id = ? AND segment_id = ?", userID, segmentID).Count(&count).Error
	return count > 0, err
}

func decodeSegmentSets(campaign model.Campaign) (include, exclude []string, err error) {
	if err = json.Unmarshal(campaign.Segments, &include); err != nil {
		return nil, nil, fmt.Errorf("membership: decode segments for %q: %w", campaign.ID, err)
	}
	if len(campaign.ExcludeSegments) > 0 {
		if err = json.Unmarshal(campaign.ExcludeSegments, &exclude); err != nil {
			return nil, nil, fmt.Errorf("membership: decode excludeSegments for %q: %w", campaign.ID, err)
		}
	}
	return include, exclude, nil
}

// ReevaluateForUser recomputes Matches for every campaign against userID,
// creating Executions for new static/dynamic members and terminating
// dynamic members that stopped matching.
func (r *Resolver) ReevaluateForUser(ctx context.Context, tx *gorm.DB, userID string) ([]Change, error) {
	var campaigns []model.Campaign
	if err := tx.WithContext(ctx).Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("membership: list campaigns: %w", err)
	}

	var changes []Change
	for _, c := range campaigns {
		change, err := r.reevaluateOne(ctx, tx, userID, c)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}

func (r *Resolver) reevaluateOne(ctx context.Context, tx *gorm.DB, userID string, campaign model.Campaign) (*Change, error) {
	matches, err := r.Matches(ctx, tx, userID, campaign)
	if err != nil {
		return nil, err
	}

	var existing model.CampaignMembership
	err = tx.WithContext(ctx).First(&existing, "user_id = ? AND campaign_id = ?", userID, campaign.ID).Error
	isMember := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("membership: load %q/%q: %w", campaign.ID, userID, err)
	}

	switch {
	case matches && !isMember:
		if err := tx.WithContext(ctx).Create(&model.CampaignMembership{UserID: userID, CampaignID: campaign.ID}).Error; err != nil {
			return nil, fmt.Errorf("membership: insert %q/%q: %w", campaign.ID, userID, err)
		}
		if err := r.executions.Create(ctx, tx, userID, campaign.ID); err != nil {
			return nil, fmt.Errorf("membership: create execution %q/%q: %w", campaign.ID, userID, err)
		}
		return &Change{CampaignID: campaign.ID, UserID: userID, Added: true}, nil

	case !matches && isMember && campaign.Behavior == model.CampaignDynamic:
		if err := tx.WithContext(ctx).Delete(&existing).Error; err != nil {
			return nil, fmt.Errorf("membership: delete %q/%q: %w", campaign.ID, userID, err)
		}
		if err := r.executions.Terminate(ctx, tx, userID, campaign.ID, "User no longer matches campaign criteria"); err != nil {
			return nil, fmt.Errorf("membership: terminate %q/%q: %w", campaign.ID, userID, err)
		}
		return &Change{CampaignID: campaign.ID, UserID: userID, Added: false}, nil
	}
	return nil, nil
}

// ReevaluateForSegmentChange reevaluates every user affected by a segment
// membership diff, for every campaign referencing that segment, in
// batches of 100.
func (r *Resolver) ReevaluateForSegmentChange(ctx context.Context, tx *gorm.DB, segmentID string, added, removed []string) ([]Change, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&model.Campaign{}).
		Where("segments LIKE ? OR exclude_segments LIKE ?", "%"+segmentID+"%", "%"+segmentID+"%").
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("membership: find affected campaigns: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	affected := append(append([]string{}, added...), removed...)
	var all []Change
	for start := 0; start < len(affected); start += reevaluateBatchSize {
		end := start + reevaluateBatchSize
		if end > len(affected) {
			end = len(affected)
		}
		for _, userID := range affected[start:end] {
			changes, err := r.ReevaluateForUser(ctx, tx, userID)
			if err != nil {
				return nil, err
			}
			all = append(all, changes...)
		}
	}
	return all, nil
}
