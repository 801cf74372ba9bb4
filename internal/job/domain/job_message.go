package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

// JobMessage es el cuerpo que viaja por el broker.
type JobMessage struct {
	JobID    uuid.UUID   `json:"jobId"`
	Cep      string      `json:"cep"`
	Priority JobPriority `json:"priority"`
}

func NewJobMessage(j *Job) JobMessage {
	return JobMessage{JobID: j.ID, Cep: j.Cep, Priority: j.Priority}
}

// NewOutboxMessage construye la notificación durable para j.
// Queda programada para la fecha del job o, si no la tiene, para su creación.
func NewOutboxMessage(j *Job, now time.Time) (*sharedDomain.OutboxMessage, error) {
	payload, err := json.Marshal(NewJobMessage(j))
	if err != nil {
		return nil, err
	}
	return &sharedDomain.OutboxMessage{
		ID:            uuid.New(),
		JobID:         j.ID,
		Payload:       string(payload),
		Priority:      RoutingKey(j.Priority),
		DeliveryRank:  j.Priority.Rank(),
		Status:        sharedDomain.OutboxPending,
		ScheduledTime: j.DispatchTime(),
		CreatedAt:     now.UTC(),
	}, nil
}
