// Package flowexec implements the periodic tick that advances every due
// Execution exactly one step.
package flowexec

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"segflow/internal/execution"
	"segflow/internal/mailer"
	"segflow/internal/membership"
	"segflow/internal/model"
	"segflow/internal/sandbox"
)

// Executor advances claimed Executions one step per tick, in a single
// database transaction per tick.
type Executor struct {
	db         *gorm.DB
	sandbox    *sandbox.Sandbox
	executions *execution.Store
	membership *membership.Resolver
	mailer     *mailer.Dispatcher
	log        *zap.Logger
}

func New(db *gorm.DB, sb *sandbox.Sandbox, executions *execution.Store, resolver *membership.Resolver, dispatcher *mailer.Dispatcher, log *zap.Logger) *Executor {
	return &Executor{db: db, sandbox: sb, executions: executions, membership: resolver, mailer: dispatcher, log: log}
}

// Tick claims every currently due Execution and advances each one step,
// committing the whole batch in one transaction. A failure advancing one
// row is caught and turned into Execution.fail; other rows continue.
func (e *Executor) Tick(ctx context.Context) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		claimed, err := e.executions.ClaimDue(ctx, tx, time.Now(), 0)
		if err != nil {
			return err
		}
		for _, ex := range claimed {
			if err := e.advance(ctx, tx, ex); err != nil {
				e.log.Warn("flow step failed",
					zap.String("user_id", ex.UserID), zap.String("campaign_id", ex.CampaignID), zap.Error(err))
				if failErr := e.executions.Fail(ctx, tx, ex.UserID, ex.CampaignID, err.Error()); failErr != nil {
					return failErr
				}
			}
		}
		return nil
	})
}

func (e *Executor) advance(ctx context.Context, tx *gorm.DB, claimed model.Execution) error {
	var campaign model.Campaign
	if err := tx.WithContext(ctx).First(&campaign, "id = ?", claimed.CampaignID).Error; err != nil {
		return err
	}
	var user model.User
	if err := tx.WithContext(ctx).First(&user, "id = ?", claimed.UserID).Error; err != nil {
		return err
	}

	stepIndex, attrStates, err := e.buildAttrStates(ctx, tx, claimed, user)
	if err != nil {
		return err
	}

	if campaign.Behavior == model.CampaignDynamic && stepIndex > 0 {
		matches, err := e.membership.Matches(ctx, tx, claimed.UserID, campaign)
		if err != nil {
			return err
		}
		if !matches {
			return e.executions.Terminate(ctx, tx, claimed.UserID, claimed.CampaignID, "User no longer matches campaign criteria")
		}
	}

	userAttrs, err := decodeAttrs(user.Attributes)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(userAttrs)
	if err != nil {
		return err
	}
	if err := e.executions.AppendHistoryStep(ctx, tx, claimed.UserID, claimed.CampaignID, stepIndex, snapshot); err != nil {
		return err
	}

	result, err := e.sandbox.StepFlow(ctx, campaign.Flow, attrStates, stepIndex)
	if err != nil {
		return err
	}

	if !reflect.DeepEqual(result.Attributes, userAttrs) && result.Attributes != nil {
		encoded, err := json.Marshal(result.Attributes)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", claimed.UserID).
			Update("attributes", encoded).Error; err != nil {
			return err
		}
		if _, err := e.membership.ReevaluateForUser(ctx, tx, claimed.UserID); err != nil {
			return err
		}
	}

	if result.Done {
		return e.executions.Complete(ctx, tx, claimed.UserID, claimed.CampaignID)
	}

	if campaign.Behavior == model.CampaignDynamic {
		matches, err := e.membership.Matches(ctx, tx, claimed.UserID, campaign)
		if err != nil {
			return err
		}
		if !matches {
			return e.executions.Terminate(ctx, tx, claimed.UserID, claimed.CampaignID, "User no longer matches campaign criteria")
		}
	}

	return e.applyCommand(ctx, tx, claimed, result.Command, result.Attributes)
}

func (e *Executor) buildAttrStates(ctx context.Context, tx *gorm.DB, claimed model.Execution, user model.User) (int, []map[string]any, error) {
	userAttrs, err := decodeAttrs(user.Attributes)
	if err != nil {
		return 0, nil, err
	}

	if claimed.Status == model.ExecutionPending {
		return 0, []map[string]any{userAttrs}, nil
	}

	history, err := e.executions.History(ctx, tx, claimed.UserID, claimed.CampaignID)
	if err != nil {
		return 0, nil, err
	}
	attrStates := make([]map[string]any, 0, len(history)+1)
	for _, h := range history {
		attrs, err := decodeAttrs(h.Attributes)
		if err != nil {
			return 0, nil, err
		}
		attrStates = append(attrStates, attrs)
	}
	attrStates = append(attrStates, userAttrs)
	return len(history), attrStates, nil
}

func (e *Executor) applyCommand(ctx context.Context, tx *gorm.DB, claimed model.Execution, cmd sandbox.Command, attrs map[string]any) error {
	switch cmd.Type {
	case sandbox.CommandWait:
		sleepUntil := time.Now().Add(sumDuration(cmd.Duration))
		return e.executions.SleepUntil(ctx, tx, claimed.UserID, claimed.CampaignID, sleepUntil)

	case sandbox.CommandSendEmail:
		if err := e.mailer.SendTemplate(ctx, tx, cmd.TemplateID, attrs); err != nil {
			return err
		}
		return e.executions.SleepUntil(ctx, tx, claimed.UserID, claimed.CampaignID, time.Now())

	case sandbox.CommandSendSMS:
		return errors.New("NotImplemented: SEND_SMS is not supported")

	default:
		return errors.New("flowexec: unknown command type")
	}
}

func sumDuration(components map[string]float64) time.Duration {
	var total time.Duration
	total += time.Duration(components["seconds"] * float64(time.Second))
	total += time.Duration(components["minutes"] * float64(time.Minute))
	total += time.Duration(components["hours"] * float64(time.Hour))
	total += time.Duration(components["days"] * 24 * float64(time.Hour))
	total += time.Duration(components["weeks"] * 7 * 24 * float64(time.Hour))
	return total
}

func decodeAttrs(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
