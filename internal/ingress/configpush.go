package ingress

import (
	"context"

	"gorm.io/gorm"

	"segflow/internal/configset"
)

// PushConfig applies cfg through the config reconciler inside one
// transaction, returning the same Result as configset.Reconciler.Push.
func (s *Services) PushConfig(ctx context.Context, cfg configset.Config) (configset.Result, error) {
	var result configset.Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := s.reconciler.Push(ctx, tx, cfg)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
