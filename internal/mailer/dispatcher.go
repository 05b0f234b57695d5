package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"segflow/internal/model"
	"segflow/internal/sandbox"
)

// Dispatcher renders and sends both campaign-flow emails (synchronous,
// inside the caller's transaction) and event-triggered transactional
// emails (best-effort, after the triggering transaction commits).
type Dispatcher struct {
	db      *gorm.DB
	sandbox *sandbox.Sandbox
	client  *asynq.Client
	log     *zap.Logger
}

func New(db *gorm.DB, sb *sandbox.Sandbox, client *asynq.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{db: db, sandbox: sb, client: client, log: log}
}

// SendTemplate renders templateID's subject and html against userAttrs and
// sends it, all within tx. Any failure here fails the calling Execution.
func (d *Dispatcher) SendTemplate(ctx context.Context, tx *gorm.DB, templateID string, userAttrs map[string]any) error {
	var tmpl model.Template
	if err := tx.WithContext(ctx).First(&tmpl, "id = ?", templateID).Error; err != nil {
		return fmt.Errorf("mailer: load template %q: %w", templateID, err)
	}

	subject, err := d.sandbox.EvalUserExpr(ctx, tmpl.Subject, userAttrs)
	if err != nil {
		return fmt.Errorf("mailer: render subject: %w", err)
	}
	html, err := d.sandbox.RenderTemplate(ctx, tmpl.HTML, tmpl.Preamble, map[string]any{"user": userAttrs})
	if err != nil {
		return fmt.Errorf("mailer: render body: %w", err)
	}

	to, _ := userAttrs["email"].(string)
	sender, err := d.loadSender(ctx, tx)
	if err != nil {
		return err
	}
	return sender.Send(ctx, to, subject, html)
}

func (d *Dispatcher) loadSender(ctx context.Context, tx *gorm.DB) (EmailSender, error) {
	var provider model.EmailProvider
	if err := tx.WithContext(ctx).First(&provider, "id = ?", 1).Error; err != nil {
		return nil, fmt.Errorf("mailer: load email provider: %w", err)
	}
	sender, err := NewSMTPSender(provider.Config, provider.FromAddress)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// Enqueue schedules a best-effort transactional-email dispatch for after
// the caller's transaction commits.
func (d *Dispatcher) Enqueue(ctx context.Context, userID, eventName string, eventAttrs map[string]any) error {
	payload, err := TransactionalPayload{UserID: userID, EventName: eventName, EventAttributes: eventAttrs}.Marshal()
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(TaskTransactionalEmail, payload))
	return err
}

// HandleTransactionalTask is the asynq handler for TaskTransactionalEmail.
// It looks up the first Transaction matching the event name, renders and
// sends; failures are logged and swallowed, never retried into the caller.
func (d *Dispatcher) HandleTransactionalTask(ctx context.Context, task *asynq.Task) error {
	var payload TransactionalPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		d.log.Error("transactional task: bad payload", zap.Error(err))
		return nil
	}

	var txn model.Transaction
	if err := d.db.WithContext(ctx).Where("event = ?", payload.EventName).Order("id ASC").First(&txn).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.log.Warn("transactional task: load transaction failed", zap.String("event", payload.EventName), zap.Error(err))
		}
		return nil
	}

	var user model.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", payload.UserID).Error; err != nil {
		d.log.Warn("transactional task: load user failed", zap.String("user_id", payload.UserID), zap.Error(err))
		return nil
	}
	var userAttrs map[string]any
	if err := json.Unmarshal(user.Attributes, &userAttrs); err != nil {
		d.log.Warn("transactional task: decode user attributes failed", zap.Error(err))
		return nil
	}

	subject, err := d.sandbox.EvalUserEventExpr(ctx, txn.Subject, userAttrs, payload.EventAttributes)
	if err != nil {
		d.log.Warn("transactional task: render subject failed", zap.Error(err))
		return nil
	}
	html, err := d.sandbox.RenderTemplate(ctx, txn.HTML, txn.Preamble, map[string]any{"user": userAttrs, "event": payload.EventAttributes})
	if err != nil {
		d.log.Warn("transactional task: render body failed", zap.Error(err))
		return nil
	}

	sender, err := d.loadSender(ctx, d.db)
	if err != nil {
		d.log.Warn("transactional task: load sender failed", zap.Error(err))
		return nil
	}
	to, _ := userAttrs["email"].(string)
	if err := sender.Send(ctx, to, subject, html); err != nil {
		d.log.Warn("transactional task: send failed", zap.String("event", payload.EventName), zap.Error(err))
	}
	return nil
}
