package configset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/execution"
	"segflow/internal/membership"
	"segflow/internal/model"
	"segflow/internal/segment"
)

// Reconciler diffs a whole-configuration push against the last accepted
// configuration and applies the resulting operations in a fixed order.
type Reconciler struct {
	segments   *segment.Evaluator
	membership *membership.Resolver
	executions *execution.Store
}

func New(segments *segment.Evaluator, membership *membership.Resolver, executions *execution.Store) *Reconciler {
	return &Reconciler{segments: segments, membership: membership, executions: executions}
}

// Push applies cfg against the last accepted configuration inside tx. It
// returns Result{NoChanges:true} and writes nothing if the diff is empty.
func (r *Reconciler) Push(ctx context.Context, tx *gorm.DB, cfg Config) (Result, error) {
	old, err := r.loadCurrent(ctx, tx)
	if err != nil {
		return Result{}, err
	}

	templateDiff := diffKeyed(old.Templates, cfg.Templates,
		func(t TemplateInput) string { return t.ID },
		func(a, b TemplateInput) bool { return a == b })
	transactionDiff := diffKeyed(old.Transactions, cfg.Transactions,
		func(t TransactionInput) string { return t.ID },
		func(a, b TransactionInput) bool { return a == b })
	segmentDiff := diffKeyed(old.Segments, cfg.Segments,
		func(s SegmentInput) string { return s.ID },
		func(a, b SegmentInput) bool { return a == b })
	campaignDiff := diffKeyed(old.Campaigns, cfg.Campaigns,
		func(c CampaignInput) string { return c.ID },
		campaignsEqual)
	providerDiff := diffKeyed(providerSlice(old.EmailProvider), providerSlice(cfg.EmailProvider),
		func(p EmailProviderInput) string { return "singleton" },
		providersEqual)

	total := templateDiff.len() + transactionDiff.len() + segmentDiff.len() + campaignDiff.len() + providerDiff.len()
	if total == 0 {
		return Result{NoChanges: true}, nil
	}

	if err := r.applyTemplates(ctx, tx, templateDiff); err != nil {
		return Result{}, err
	}
	if err := r.applyTransactions(ctx, tx, transactionDiff); err != nil {
		return Result{}, err
	}
	if err := r.applySegments(ctx, tx, segmentDiff); err != nil {
		return Result{}, err
	}
	if err := r.applyCampaigns(ctx, tx, campaignDiff); err != nil {
		return Result{}, err
	}
	if err := r.applyEmailProvider(ctx, tx, providerDiff); err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("configset: marshal config: %w", err)
	}
	row := model.Config{ConfigJSON: datatypes.JSON(payload)}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return Result{}, fmt.Errorf("configset: append ledger row: %w", err)
	}

	return Result{ConfigID: row.ID, Operations: total}, nil
}

func (r *Reconciler) loadCurrent(ctx context.Context, tx *gorm.DB) (Config, error) {
	var row model.Config
	err := tx.WithContext(ctx).Order("created_at DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("configset: load current config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(row.ConfigJSON, &cfg); err != nil {
		return Config{}, fmt.Errorf("configset: decode current config: %w", err)
	}
	return cfg, nil
}

func campaignsEqual(a, b CampaignInput) bool {
	return a.ID == b.ID && a.Flow == b.Flow && a.Behavior == b.Behavior &&
		stringSetEqual(a.Segments, b.Segments) && stringSetEqual(a.ExcludeSegments, b.ExcludeSegments)
}

func providersEqual(a, b EmailProviderInput) bool {
	if a.Name != b.Name || a.FromAddress != b.FromAddress || len(a.Config) != len(b.Config) {
		return false
	}
	for k, v := range a.Config {
		if b.Config[k] != v {
			return false
		}
	}
	return true
}

func providerSlice(p *EmailProviderInput) []EmailProviderInput {
	if p == nil {
		return nil
	}
	return []EmailProviderInput{*p}
}
