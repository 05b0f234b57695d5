package ingress

import (
	"context"
	"fmt"

	"segflow/internal/model"
	"segflow/pkg/errutil"
)

// CreateTemplate inserts a new template.
func (s *Services) CreateTemplate(ctx context.Context, id, subject, html, preamble string) error {
	err := s.db.WithContext(ctx).Create(&model.Template{ID: id, Subject: subject, HTML: html, Preamble: preamble}).Error
	if err != nil {
		return fmt.Errorf("ingress: create template %q: %w", id, err)
	}
	return nil
}

// UpdateTemplate replaces a template's subject/html/preamble.
func (s *Services) UpdateTemplate(ctx context.Context, id, subject, html, preamble string) error {
	res := s.db.WithContext(ctx).Model(&model.Template{}).Where("id = ?", id).
		Updates(map[string]any{"subject": subject, "html": html, "preamble": preamble})
	if res.Error != nil {
		return fmt.Errorf("ingress: update template %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound(fmt.Sprintf("template %q not found", id), nil)
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Services) DeleteTemplate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Template{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("ingress: delete template %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound(fmt.Sprintf("template %q not found", id), nil)
	}
	return nil
}

