package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"segflow/internal/model"
)

// SetEmailProvider truncates and replaces the singleton EmailProvider row.
func (s *Services) SetEmailProvider(ctx context.Context, name string, config map[string]any, fromAddress string) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("ingress: marshal email provider config: %w", err)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("id = ?", 1).Delete(&model.EmailProvider{}).Error; err != nil {
			return fmt.Errorf("ingress: truncate email provider: %w", err)
		}
		row := model.EmailProvider{ID: 1, Name: name, Config: datatypes.JSON(payload), FromAddress: fromAddress}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("ingress: insert email provider: %w", err)
		}
		return nil
	})
}
