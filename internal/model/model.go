// Package model holds the gorm-mapped tables that back the engine. Every
// cross-table invariant described by the engine's components is enforced in
// code that reads and writes these structs inside a single *gorm.DB
// transaction; the structs themselves carry no behavior beyond the trivial
// TableName overrides gorm needs.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// User is the only table the engine shares write access to with the rest of
// the system: everything else here belongs exclusively to segflow.
type User struct {
	ID         string         `gorm:"column:id;primaryKey;type:varchar(191)"`
	Attributes datatypes.JSON `gorm:"column:attributes;type:json;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// Event is immutable once inserted; ID is monotonic per row-insertion order.
type Event struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string         `gorm:"column:name;type:varchar(191);index:idx_events_name"`
	UserID     string         `gorm:"column:user_id;type:varchar(191);index:idx_events_user"`
	Attributes datatypes.JSON `gorm:"column:attributes;type:json;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_events_created_at"`
}

func (Event) TableName() string { return "events" }

// Segment stores the SQL text an operator authored; the engine never
// interprets its meaning beyond running it and extracting event triggers.
type Segment struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(191)"`
	Evaluator string    `gorm:"column:evaluator;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Segment) TableName() string { return "segments" }

// SegmentEventTrigger is derived state: it always equals the set of event
// names statically extractable from the owning segment's SQL.
type SegmentEventTrigger struct {
	SegmentID string `gorm:"column:segment_id;primaryKey;type:varchar(191)"`
	Event     string `gorm:"column:event;primaryKey;type:varchar(191)"`
}

func (SegmentEventTrigger) TableName() string { return "segment_event_triggers" }

// SegmentMembership exists iff the user currently matches the segment's SQL.
type SegmentMembership struct {
	UserID    string `gorm:"column:user_id;primaryKey;type:varchar(191)"`
	SegmentID string `gorm:"column:segment_id;primaryKey;type:varchar(191)"`
}

func (SegmentMembership) TableName() string { return "segment_memberships" }

// CampaignBehavior distinguishes campaigns that never evict a matching user
// from ones whose membership tracks matches(user, campaign) exactly.
type CampaignBehavior string

const (
	CampaignStatic  CampaignBehavior = "static"
	CampaignDynamic CampaignBehavior = "dynamic"
)

// Campaign holds the resumable flow program plus its segment predicate.
type Campaign struct {
	ID                string           `gorm:"column:id;primaryKey;type:varchar(191)"`
	Flow              string           `gorm:"column:flow;type:text;not null"`
	Behavior          CampaignBehavior `gorm:"column:behavior;type:varchar(16);not null"`
	Segments          datatypes.JSON   `gorm:"column:segments;type:json;not null"`         // []string, non-empty
	ExcludeSegments   datatypes.JSON   `gorm:"column:exclude_segments;type:json;not null"` // []string, may be empty
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignMembership is monotone for static campaigns and tracks
// matches(user, campaign) exactly for dynamic ones.
type CampaignMembership struct {
	UserID     string `gorm:"column:user_id;primaryKey;type:varchar(191)"`
	CampaignID string `gorm:"column:campaign_id;primaryKey;type:varchar(191)"`
}

func (CampaignMembership) TableName() string { return "campaign_memberships" }

// ExecutionStatus is the lifecycle state of one user's traversal of one
// campaign's flow.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionSleeping   ExecutionStatus = "sleeping"
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionTerminated ExecutionStatus = "terminated"
)

// Execution is 1:1 with CampaignMembership while live; terminal rows are
// preserved until an operator or a later campaign delete cleans them up.
type Execution struct {
	UserID     string          `gorm:"column:user_id;primaryKey;type:varchar(191)"`
	CampaignID string          `gorm:"column:campaign_id;primaryKey;type:varchar(191)"`
	Status     ExecutionStatus `gorm:"column:status;type:varchar(16);not null"`
	SleepUntil time.Time       `gorm:"column:sleep_until;index:idx_executions_due"`
	Error      string          `gorm:"column:error;type:text"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Execution) TableName() string { return "executions" }

// ExecutionHistoryStep records the user-attribute snapshot observed just
// before yielding the step of the same index. step_index is dense from 0.
type ExecutionHistoryStep struct {
	UserID     string         `gorm:"column:user_id;primaryKey;type:varchar(191)"`
	CampaignID string         `gorm:"column:campaign_id;primaryKey;type:varchar(191)"`
	StepIndex  int            `gorm:"column:step_index;primaryKey"`
	Attributes datatypes.JSON `gorm:"column:attributes;type:json;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ExecutionHistoryStep) TableName() string { return "execution_history_steps" }

// Template is an HTML body plus the expression sources rendered alongside
// it: subject text, an optional preamble evaluated before the body.
type Template struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(191)"`
	Subject   string    `gorm:"column:subject;type:text;not null"`
	HTML      string    `gorm:"column:html;type:text;not null"`
	Preamble  string    `gorm:"column:preamble;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Template) TableName() string { return "templates" }

// Transaction binds a one-shot email to an event name. At most one row per
// event name is honored by the dispatcher; ties are broken by id order.
type Transaction struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(191)"`
	Event     string    `gorm:"column:event;type:varchar(191);index"`
	Subject   string    `gorm:"column:subject;type:text;not null"`
	HTML      string    `gorm:"column:html;type:text;not null"`
	Preamble  string    `gorm:"column:preamble;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }

// EmailProvider is a singleton row (id=1); Config is a tagged union stored
// as JSON since its shape depends on Name.
type EmailProvider struct {
	ID          int            `gorm:"column:id;primaryKey"`
	Name        string         `gorm:"column:name;type:varchar(32);not null"`
	Config      datatypes.JSON `gorm:"column:config;type:json;not null"`
	FromAddress string         `gorm:"column:from_address;type:varchar(191);not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (EmailProvider) TableName() string { return "email_providers" }

// Config is the append-only push ledger; "current" is the newest row by
// CreatedAt (ties broken by ID, since CreatedAt alone can collide at
// millisecond resolution under some drivers).
type Config struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	ConfigJSON datatypes.JSON `gorm:"column:config_json;type:json;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Config) TableName() string { return "configs" }

// All returns every model the store owns, for AutoMigrate calls.
func All() []any {
	return []any{
		&User{}, &Event{}, &Segment{}, &SegmentEventTrigger{}, &SegmentMembership{},
		&Campaign{}, &CampaignMembership{}, &Execution{}, &ExecutionHistoryStep{},
		&Template{}, &Transaction{}, &EmailProvider{}, &Config{},
	}
}
