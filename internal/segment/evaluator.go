// Package segment evaluates segment SQL against the store and keeps
// SegmentMembership rows in sync with the truth that SQL currently returns.
package segment

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"segflow/internal/model"
)

var (
	evalCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segflow_segment_eval_coalesced_total",
		Help: "Global segment evaluations served by an in-flight singleflight call instead of a fresh query.",
	})
	evalDistinct = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segflow_segment_eval_distinct_total",
		Help: "Global segment evaluations that issued their own query.",
	})
)

func init() {
	prometheus.MustRegister(evalCoalesced, evalDistinct)
}

// Diff is the outcome of reconciling stored membership against a fresh
// evaluation of a segment's SQL.
type Diff struct {
	Added   []string
	Removed []string
	Total   int
}

// Evaluator runs segment predicates and reconciles SegmentMembership.
// It holds no per-segment cache of results, only in-flight call coalescing:
// two concurrent EvaluateGlobal calls for the same segment id share one
// SQL round-trip.
type Evaluator struct {
	group singleflight.Group
}

func New() *Evaluator {
	return &Evaluator{}
}

// EvaluateGlobal runs segment.evaluator against tx, diffs the resulting id
// set against current SegmentMembership rows, and applies the diff.
func (e *Evaluator) EvaluateGlobal(ctx context.Context, tx *gorm.DB, segmentID string) (Diff, error) {
	var segment model.Segment
	if err := tx.WithContext(ctx).First(&segment, "id = ?", segmentID).Error; err != nil {
		return Diff{}, fmt.Errorf("segment: load %q: %w", segmentID, err)
	}

	// A coalesced call reuses the ids from whichever caller's tx won the
	// race, not this call's own tx. Fine for the common case of one
	// writer at a time per segment; a caller relying on read-your-writes
	// against its own uncommitted tx state must not share this path.
	idsAny, err, shared := e.group.Do(segmentID, func() (any, error) {
		var ids []string
		if runErr := tx.WithContext(ctx).Raw(segment.Evaluator).Scan(&ids).Error; runErr != nil {
			return nil, fmt.Errorf("segment: evaluate %q: %w", segmentID, runErr)
		}
		return ids, nil
	})
	if shared {
		evalCoalesced.Inc()
	} else {
		evalDistinct.Inc()
	}
	if err != nil {
		return Diff{}, err
	}
	matched := idsAny.([]string)

	var current []string
	if err := tx.WithContext(ctx).Model(&model.SegmentMembership{}).
		Where("segment_id = ?", segmentID).Pluck("user_id", &current).Error; err != nil {
		return Diff{}, fmt.Errorf("segment: load memberships %q: %w", segmentID, err)
	}

	added, removed := diffSets(current, matched)

	if len(added) > 0 {
		rows := make([]model.SegmentMembership, len(added))
		for i, uid := range added {
			rows[i] = model.SegmentMembership{UserID: uid, SegmentID: segmentID}
		}
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			return Diff{}, fmt.Errorf("segment: insert memberships %q: %w", segmentID, err)
		}
	}
	if len(removed) > 0 {
		if err := tx.WithContext(ctx).Where("segment_id = ? AND user_id IN ?", segmentID, removed).
			Delete(&model.SegmentMembership{}).Error; err != nil {
			return Diff{}, fmt.Errorf("segment: delete memberships %q: %w", segmentID, err)
		}
	}

	return Diff{Added: added, Removed: removed, Total: len(matched)}, nil
}

// EvaluateForUser recomputes membership truth for userID across every
// segment, flipping SegmentMembership rows where truth changed.
func (e *Evaluator) EvaluateForUser(ctx context.Context, tx *gorm.DB, userID string) error {
	var segments []model.Segment
	if err := tx.WithContext(ctx).Find(&segments).Error; err != nil {
		return fmt.Errorf("segment: list segments: %w", err)
	}
	for _, s := range segments {
		if err := e.evaluateForUserAgainst(ctx, tx, s, userID); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateForUserOnEvent is EvaluateForUser restricted to segments whose
// SegmentEventTrigger set contains eventName.
func (e *Evaluator) EvaluateForUserOnEvent(ctx context.Context, tx *gorm.DB, userID, eventName string) error {
	var segmentIDs []string
	if err := tx.WithContext(ctx).Model(&model.SegmentEventTrigger{}).
		Where("event = ?", eventName).Pluck("segment_id", &segmentIDs).Error; err != nil {
		return fmt.Errorf("segment: load triggers for %q: %w", eventName, err)
	}
	if len(segmentIDs) == 0 {
		return nil
	}
	var segments []model.Segment
	if err := tx.WithContext(ctx).Where("id IN ?", segmentIDs).Find(&segments).Error; err != nil {
		return fmt.Errorf("segment: load triggered segments: %w", err)
	}
	for _, s := range segments {
		if err := e.evaluateForUserAgainst(ctx, tx, s, userID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) evaluateForUserAgainst(ctx context.Context, tx *gorm.DB, s model.Segment, userID string) error {
	query := fmt.Sprintf("WITH m AS (%s) SELECT id FROM m WHERE id = ?", s.Evaluator)
	var ids []string
	if err := tx.WithContext(ctx).Raw(query, userID).Scan(&ids).Error; err != nil {
		return fmt.Errorf("segment: evaluate %q for user %q: %w", s.ID, userID, err)
	}
	matches := len(ids) > 0

	var existing model.SegmentMembership
	err := tx.WithContext(ctx).First(&existing, "segment_id = ? AND user_id = ?", s.ID, userID).Error
	isMember := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("segment: load membership %q/%q: %w", s.ID, userID, err)
	}

	switch {
	case matches && !isMember:
		if err := tx.WithContext(ctx).Create(&model.SegmentMembership{UserID: userID, SegmentID: s.ID}).Error; err != nil {
			return fmt.Errorf("segment: insert membership %q/%q: %w", s.ID, userID, err)
		}
	case !matches && isMember:
		if err := tx.WithContext(ctx).Delete(&existing).Error; err != nil {
			return fmt.Errorf("segment: delete membership %q/%q: %w", s.ID, userID, err)
		}
	}
	return nil
}

func diffSets(current, target []string) (added, removed []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	targetSet := make(map[string]struct{}, len(target))
	for _, id := range target {
		targetSet[id] = struct{}{}
	}
	for id := range targetSet {
		if _, ok := currentSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range currentSet {
		if _, ok := targetSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
