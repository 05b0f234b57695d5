package configset

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/execution"
	"segflow/internal/model"
	"segflow/internal/segment"
	"segflow/pkg/errutil"
)

func (r *Reconciler) applyTemplates(ctx context.Context, tx *gorm.DB, d keyedDiff[TemplateInput]) error {
	if len(d.Deletes) > 0 {
		if err := tx.WithContext(ctx).Where("id IN ?", d.Deletes).Delete(&model.Template{}).Error; err != nil {
			return fmt.Errorf("configset: delete templates: %w", err)
		}
	}
	for _, t := range d.Adds {
		if err := tx.WithContext(ctx).Create(&model.Template{ID: t.ID, Subject: t.Subject, HTML: t.HTML, Preamble: t.Preamble}).Error; err != nil {
			return fmt.Errorf("configset: add template %q: %w", t.ID, err)
		}
	}
	for _, t := range d.Updates {
		if err := tx.WithContext(ctx).Model(&model.Template{}).Where("id = ?", t.ID).
			Updates(map[string]any{"subject": t.Subject, "html": t.HTML, "preamble": t.Preamble}).Error; err != nil {
			return fmt.Errorf("configset: update template %q: %w", t.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) applyTransactions(ctx context.Context, tx *gorm.DB, d keyedDiff[TransactionInput]) error {
	if len(d.Deletes) > 0 {
		if err := tx.WithContext(ctx).Where("id IN ?", d.Deletes).Delete(&model.Transaction{}).Error; err != nil {
			return fmt.Errorf("configset: delete transactions: %w", err)
		}
	}
	for _, t := range d.Adds {
		if err := tx.WithContext(ctx).Create(&model.Transaction{ID: t.ID, Event: t.Event, Subject: t.Subject, HTML: t.HTML, Preamble: t.Preamble}).Error; err != nil {
			return fmt.Errorf("configset: add transaction %q: %w", t.ID, err)
		}
	}
	for _, t := range d.Updates {
		if err := tx.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", t.ID).
			Updates(map[string]any{"event": t.Event, "subject": t.Subject, "html": t.HTML, "preamble": t.Preamble}).Error; err != nil {
			return fmt.Errorf("configset: update transaction %q: %w", t.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) applySegments(ctx context.Context, tx *gorm.DB, d keyedDiff[SegmentInput]) error {
	for _, id := range d.Deletes {
		referenced, err := segmentReferencedByCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if referenced {
			return errutil.Conflict(fmt.Sprintf("segment %q is referenced by a campaign", id), nil)
		}
		if err := tx.WithContext(ctx).Where("segment_id = ?", id).Delete(&model.SegmentMembership{}).Error; err != nil {
			return fmt.Errorf("configset: delete memberships for segment %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Where("segment_id = ?", id).Delete(&model.SegmentEventTrigger{}).Error; err != nil {
			return fmt.Errorf("configset: delete triggers for segment %q: %w", id, err)
		}
		if err := tx.WithContext(ctx).Delete(&model.Segment{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("configset: delete segment %q: %w", id, err)
		}
	}

	upserts := append(append([]SegmentInput{}, d.Adds...), d.Updates...)
	for _, s := range upserts {
		if err := tx.WithContext(ctx).Save(&model.Segment{ID: s.ID, Evaluator: s.Evaluator}).Error; err != nil {
			return fmt.Errorf("configset: upsert segment %q: %w", s.ID, err)
		}
		if err := r.resyncTriggers(ctx, tx, s.ID, s.Evaluator); err != nil {
			return err
		}
		diff, err := r.segments.EvaluateGlobal(ctx, tx, s.ID)
		if err != nil {
			return fmt.Errorf("configset: evaluate segment %q: %w", s.ID, err)
		}
		if _, err := r.membership.ReevaluateForSegmentChange(ctx, tx, s.ID, diff.Added, diff.Removed); err != nil {
			return fmt.Errorf("configset: reevaluate campaigns for segment %q: %w", s.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) resyncTriggers(ctx context.Context, tx *gorm.DB, segmentID, evaluator string) error {
	if err := tx.WithContext(ctx).Where("segment_id = ?", segmentID).Delete(&model.SegmentEventTrigger{}).Error; err != nil {
		return fmt.Errorf("configset: clear triggers for segment %q: %w", segmentID, err)
	}
	names := segment.TriggerNames(evaluator)
	if len(names) == 0 {
		return nil
	}
	rows := make([]model.SegmentEventTrigger, len(names))
	for i, name := range names {
		rows[i] = model.SegmentEventTrigger{SegmentID: segmentID, Event: name}
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("configset: write triggers for segment %q: %w", segmentID, err)
	}
	return nil
}

func segmentReferencedByCampaign(ctx context.Context, tx *gorm.DB, segmentID string) (bool, error) {
	// Match the JSON-quoted id so that ids merely containing segmentID do not count.
	quoted, err := json.Marshal(segmentID)
	if err != nil {
		return false, err
	}
	pattern := "%" + string(quoted) + "%"
	var count int64
	err = tx.WithContext(ctx).Model(&model.Campaign{}).
		Where("segments LIKE ? OR exclude_segments LIKE ?", pattern, pattern).
		Count(&count).Error
	return count > 0, err
}

func (r *Reconciler) applyCampaigns(ctx context.Context, tx *gorm.DB, d keyedDiff[CampaignInput]) error {
	if len(d.Updates) > 0 {
		return errutil.Conflict(fmt.Sprintf("campaign %q cannot be updated in place; delete and re-add it", d.Updates[0].ID), nil)
	}

	for _, id := range d.Deletes {
		if err := r.deleteCampaign(ctx, tx, id); err != nil {
			return err
		}
	}
	for _, c := range d.Adds {
		if len(c.Segments) == 0 {
			return errutil.BadRequest(fmt.Sprintf("campaign %q must include at least one segment", c.ID), nil)
		}
		if err := r.addCampaign(ctx, tx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) deleteCampaign(ctx context.Context, tx *gorm.DB, campaignID string) error {
	if err := DeleteCampaignCascade(ctx, tx, r.executions, campaignID); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Delete(&model.Campaign{}, "id = ?", campaignID).Error; err != nil {
		return fmt.Errorf("configset: delete campaign %q: %w", campaignID, err)
	}
	return nil
}

// DeleteCampaignCascade terminates every live Execution for campaignID and
// removes its history, executions, and CampaignMembership rows. It does not
// delete the Campaign row itself, so both ConfigReconciler (a step within a
// larger apply) and IngressServices (a standalone campaign delete) can share
// it and each own when the Campaign row disappears.
func DeleteCampaignCascade(ctx context.Context, tx *gorm.DB, executions *execution.Store, campaignID string) error {
	var members []model.CampaignMembership
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Find(&members).Error; err != nil {
		return fmt.Errorf("configset: load memberships for campaign %q: %w", campaignID, err)
	}
	for _, m := range members {
		if err := executions.Terminate(ctx, tx, m.UserID, campaignID, "Campaign deleted"); err != nil {
			return fmt.Errorf("configset: terminate execution %q/%q: %w", m.UserID, campaignID, err)
		}
	}
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&model.ExecutionHistoryStep{}).Error; err != nil {
		return fmt.Errorf("configset: delete history for campaign %q: %w", campaignID, err)
	}
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&model.Execution{}).Error; err != nil {
		return fmt.Errorf("configset: delete executions for campaign %q: %w", campaignID, err)
	}
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&model.CampaignMembership{}).Error; err != nil {
		return fmt.Errorf("configset: delete memberships for campaign %q: %w", campaignID, err)
	}
	return nil
}

func (r *Reconciler) addCampaign(ctx context.Context, tx *gorm.DB, c CampaignInput) error {
	includeJSON, err := json.Marshal(c.Segments)
	if err != nil {
		return fmt.Errorf("configset: marshal segments for campaign %q: %w", c.ID, err)
	}
	excludeJSON, err := json.Marshal(c.ExcludeSegments)
	if err != nil {
		return fmt.Errorf("configset: marshal excludeSegments for campaign %q: %w", c.ID, err)
	}

	row := model.Campaign{
		ID:              c.ID,
		Flow:            c.Flow,
		Behavior:        model.CampaignBehavior(c.Behavior),
		Segments:        datatypes.JSON(includeJSON),
		ExcludeSegments: datatypes.JSON(excludeJSON),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("configset: create campaign %q: %w", c.ID, err)
	}

	return SeedCampaignMembership(ctx, tx, r.executions, c.ID, c.Segments, c.ExcludeSegments)
}

// SeedCampaignMembership computes the initial member set for a just-created
// campaign and creates one CampaignMembership plus one Execution per member.
func SeedCampaignMembership(ctx context.Context, tx *gorm.DB, executions *execution.Store, campaignID string, include, exclude []string) error {
	userIDs, err := InitialCampaignMembers(ctx, tx, include, exclude)
	if err != nil {
		return fmt.Errorf("configset: compute initial membership for campaign %q: %w", campaignID, err)
	}
	for _, userID := range userIDs {
		if err := tx.WithContext(ctx).Create(&model.CampaignMembership{UserID: userID, CampaignID: campaignID}).Error; err != nil {
			return fmt.Errorf("configset: seed membership %q/%q: %w", userID, campaignID, err)
		}
		if err := executions.Create(ctx, tx, userID, campaignID); err != nil {
			return fmt.Errorf("configset: seed execution %q/%q: %w", userID, campaignID, err)
		}
	}
	return nil
}

// InitialCampaignMembers computes, in one query, the users belonging to
// every include segment and no exclude segment.
func InitialCampaignMembers(ctx context.Context, tx *gorm.DB, include, exclude []string) ([]string, error) {
	query := tx.WithContext(ctx).Model(&model.SegmentMembership{}).
		Select("user_id").
		Where("segment_id IN ?", include).
		Group("user_id").
		Having("COUNT(DISTINCT segment_id) = ?", len(include))

	if len(exclude) > 0 {
		query = query.Where("user_id NOT IN (?)", tx.Model(&model.SegmentMembership{}).
			Select("user_id").Where("segment_id IN ?", exclude))
	}

	var userIDs []string
	if err := query.Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *Reconciler) applyEmailProvider(ctx context.Context, tx *gorm.DB, d keyedDiff[EmailProviderInput]) error {
	if len(d.Deletes) > 0 {
		if err := tx.WithContext(ctx).Where("id = ?", 1).Delete(&model.EmailProvider{}).Error; err != nil {
			return fmt.Errorf("configset: delete email provider: %w", err)
		}
	}
	upserts := append(append([]EmailProviderInput{}, d.Adds...), d.Updates...)
	for _, p := range upserts {
		configJSON, err := json.Marshal(p.Config)
		if err != nil {
			return fmt.Errorf("configset: marshal email provider config: %w", err)
		}
		if err := tx.WithContext(ctx).Where("id = ?", 1).Delete(&model.EmailProvider{}).Error; err != nil {
			return fmt.Errorf("configset: truncate email provider: %w", err)
		}
		row := model.EmailProvider{ID: 1, Name: p.Name, Config: datatypes.JSON(configJSON), FromAddress: p.FromAddress}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("configset: insert email provider: %w", err)
		}
	}
	return nil
}
