package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobProcessing JobStatus = "Processing"
	JobFinished   JobStatus = "Finished"
	JobError      JobStatus = "Error"
	JobCancelled  JobStatus = "Cancelled"
)

// IsTerminal indica si el estado ya no admite transiciones.
func (s JobStatus) IsTerminal() bool {
	return s == JobFinished || s == JobError || s == JobCancelled
}

type JobPriority string

const (
	PriorityHigh JobPriority = "High"
	PriorityLow  JobPriority = "Low"
)

// ParsePriority acepta el nombre de la prioridad sin distinguir mayúsculas.
func ParsePriority(s string) (JobPriority, error) {
	switch {
	case strings.EqualFold(s, string(PriorityHigh)):
		return PriorityHigh, nil
	case strings.EqualFold(s, string(PriorityLow)):
		return PriorityLow, nil
	}
	return "", ErrInvalidPriority
}

func (p JobPriority) IsValid() bool {
	return p == PriorityHigh || p == PriorityLow
}

// Rank ordena la entrega: menor rank sale antes.
func (p JobPriority) Rank() int {
	if p == PriorityHigh {
		return 0
	}
	return 1
}

var cepPattern = regexp.MustCompile(`^\d{5}-?\d{3}$`)

// ValidateCEP comprueba el formato 00000-000 o 00000000.
func ValidateCEP(cep string) error {
	if !cepPattern.MatchString(cep) {
		return ErrInvalidCEP
	}
	return nil
}

// Job es una petición de enriquecimiento de dirección.
// CompletedAt está informado si y solo si el estado es terminal.
type Job struct {
	ID            uuid.UUID   `json:"id"`
	Cep           string      `json:"cep"`
	Priority      JobPriority `json:"priority"`
	Status        JobStatus   `json:"status"`
	ScheduledTime *time.Time  `json:"scheduledTime"`
	CreatedAt     time.Time   `json:"createdAt"`
	CompletedAt   *time.Time  `json:"completedAt"`
}

// NewJob valida la entrada y crea un job en Pending.
func NewJob(cep string, priority JobPriority, scheduledTime *time.Time, now time.Time) (*Job, error) {
	if err := ValidateCEP(cep); err != nil {
		return nil, err
	}
	if !priority.IsValid() {
		return nil, ErrInvalidPriority
	}
	if scheduledTime != nil {
		st := scheduledTime.UTC()
		scheduledTime = &st
	}
	return &Job{
		ID:            uuid.New(),
		Cep:           cep,
		Priority:      priority,
		Status:        JobPending,
		ScheduledTime: scheduledTime,
		CreatedAt:     now.UTC(),
	}, nil
}

// DispatchTime es el momento a partir del cual el job debe despacharse.
func (j *Job) DispatchTime() time.Time {
	if j.ScheduledTime != nil {
		return *j.ScheduledTime
	}
	return j.CreatedAt
}

// --- Métodos de dominio ---

// Cancel solo se permite desde Pending.
func (j *Job) Cancel(now time.Time) error {
	if j.Status != JobPending {
		return ErrJobNotCancellable
	}
	j.complete(JobCancelled, now)
	return nil
}

func (j *Job) StartProcessing() error {
	if j.Status != JobPending {
		return ErrInvalidTransition
	}
	j.Status = JobProcessing
	return nil
}

func (j *Job) Finish(now time.Time) error {
	if j.Status != JobProcessing {
		return ErrInvalidTransition
	}
	j.complete(JobFinished, now)
	return nil
}

func (j *Job) Fail(now time.Time) error {
	if j.Status != JobProcessing {
		return ErrInvalidTransition
	}
	j.complete(JobError, now)
	return nil
}

func (j *Job) complete(status JobStatus, now time.Time) {
	t := now.UTC()
	j.Status = status
	j.CompletedAt = &t
}

// Clone devuelve una copia independiente (los punteros de tiempo incluidos).
func (j *Job) Clone() *Job {
	c := *j
	if j.ScheduledTime != nil {
		st := *j.ScheduledTime
		c.ScheduledTime = &st
	}
	if j.CompletedAt != nil {
		ct := *j.CompletedAt
		c.CompletedAt = &ct
	}
	return &c
}
