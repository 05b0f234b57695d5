// Package execution owns the executions and execution_history_steps
// tables and their state transitions.
package execution

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"segflow/internal/model"
)

// Store performs Execution lifecycle transitions inside caller-supplied
// transactions; it never opens its own.
type Store struct{}

func New() *Store { return &Store{} }

// Create inserts a pending Execution due immediately.
func (s *Store) Create(ctx context.Context, tx *gorm.DB, userID, campaignID string) error {
	return tx.WithContext(ctx).Create(&model.Execution{
		UserID:     userID,
		CampaignID: campaignID,
		Status:     model.ExecutionPending,
		SleepUntil: time.Now(),
	}).Error
}

// SleepUntil transitions an Execution to sleeping until ts.
func (s *Store) SleepUntil(ctx context.Context, tx *gorm.DB, userID, campaignID string, ts time.Time) error {
	return s.update(ctx, tx, userID, campaignID, map[string]any{
		"status":      model.ExecutionSleeping,
		"sleep_until": ts,
		"error":       "",
	})
}

// Complete marks an Execution as finished.
func (s *Store) Complete(ctx context.Context, tx *gorm.DB, userID, campaignID string) error {
	return s.update(ctx, tx, userID, campaignID, map[string]any{
		"status": model.ExecutionCompleted,
		"error":  "",
	})
}

// Fail marks an Execution as terminally failed with message.
func (s *Store) Fail(ctx context.Context, tx *gorm.DB, userID, campaignID, message string) error {
	return s.update(ctx, tx, userID, campaignID, map[string]any{
		"status": model.ExecutionFailed,
		"error":  message,
	})
}

// Terminate marks an Execution as terminated with reason. Missing rows are
// not an error: terminate is idempotent.
func (s *Store) Terminate(ctx context.Context, tx *gorm.DB, userID, campaignID, reason string) error {
	res := tx.WithContext(ctx).Model(&model.Execution{}).
		Where("user_id = ? AND campaign_id = ?", userID, campaignID).
		Updates(map[string]any{"status": model.ExecutionTerminated, "error": reason})
	return res.Error
}

func (s *Store) update(ctx context.Context, tx *gorm.DB, userID, campaignID string, fields map[string]any) error {
	res := tx.WithContext(ctx).Model(&model.Execution{}).
		Where("user_id = ? AND campaign_id = ?", userID, campaignID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution: no row for user=%q campaign=%q", userID, campaignID)
	}
	return nil
}

// ClaimDue locks and returns up to limit executions with status in
// {pending, sleeping} and sleep_until <= now, atomically flipping them to
// running within the same transaction. limit <= 0 means unlimited.
func (s *Store) ClaimDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]model.Execution, error) {
	q := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status IN ?", []model.ExecutionStatus{model.ExecutionPending, model.ExecutionSleeping}).
		Where("sleep_until <= ?", now)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var claimed []model.Execution
	if err := q.Find(&claimed).Error; err != nil {
		return nil, fmt.Errorf("execution: claim due: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	for i := range claimed {
		if err := tx.WithContext(ctx).Model(&model.Execution{}).
			Where("user_id = ? AND campaign_id = ?", claimed[i].UserID, claimed[i].CampaignID).
			Update("status", model.ExecutionRunning).Error; err != nil {
			return nil, fmt.Errorf("execution: mark running: %w", err)
		}
		claimed[i].Status = model.ExecutionRunning
	}
	return claimed, nil
}

// AppendHistoryStep records the attribute snapshot the flow will see at
// stepIndex.
func (s *Store) AppendHistoryStep(ctx context.Context, tx *gorm.DB, userID, campaignID string, stepIndex int, attributes []byte) error {
	return tx.WithContext(ctx).Create(&model.ExecutionHistoryStep{
		UserID:     userID,
		CampaignID: campaignID,
		StepIndex:  stepIndex,
		Attributes: attributes,
	}).Error
}

// History returns the attribute snapshots recorded for (userID, campaignID),
// ordered by step_index.
func (s *Store) History(ctx context.Context, tx *gorm.DB, userID, campaignID string) ([]model.ExecutionHistoryStep, error) {
	var rows []model.ExecutionHistoryStep
	err := tx.WithContext(ctx).
		Where("user_id = ? AND campaign_id = ?", userID, campaignID).
		Order("step_index ASC").
		Find(&rows).Error
	return rows, err
}
