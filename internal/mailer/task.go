package mailer

import "encoding/json"

// TaskTransactionalEmail is the asynq task type carrying a best-effort
// transactional-email dispatch, enqueued after an ingress transaction
// commits.
const TaskTransactionalEmail = "transactional:email"

// TransactionalPayload is the asynq task payload for TaskTransactionalEmail.
type TransactionalPayload struct {
	UserID          string         `json:"userId"`
	EventName       string         `json:"eventName"`
	EventAttributes map[string]any `json:"eventAttributes"`
}

func (p TransactionalPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
