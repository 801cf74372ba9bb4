package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newPending(now time.Time) *OutboxMessage {
	return &OutboxMessage{
		ID:            uuid.New(),
		JobID:         uuid.New(),
		Status:        OutboxPending,
		ScheduledTime: now.Add(-time.Minute),
		CreatedAt:     now.Add(-time.Minute),
	}
}

func TestOutboxMessage_IsClaimable(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Minute)
	past := now.Add(-time.Second)

	cases := []struct {
		name   string
		mutate func(m *OutboxMessage)
		want   bool
	}{
		{"pendiente y vencido", func(m *OutboxMessage) {}, true},
		{"programado a futuro", func(m *OutboxMessage) { m.ScheduledTime = future }, false},
		{"programado exactamente ahora", func(m *OutboxMessage) { m.ScheduledTime = now }, true},
		{"lease vigente", func(m *OutboxMessage) { m.LockedUntil = &future }, false},
		{"lease expirado", func(m *OutboxMessage) { m.LockedUntil = &past }, true},
		{"ya enviado", func(m *OutboxMessage) { m.Status = OutboxSent }, false},
		{"en error", func(m *OutboxMessage) { m.Status = OutboxError }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newPending(now)
			tc.mutate(m)
			assert.Equal(t, tc.want, m.IsClaimable(now))
		})
	}
}

func TestOutboxMessage_MarkSent(t *testing.T) {
	now := time.Now().UTC()
	m := newPending(now)
	lock := now.Add(30 * time.Second)
	m.LockedUntil = &lock

	m.MarkSent(now)

	assert.Equal(t, OutboxSent, m.Status)
	assert.NotNil(t, m.SentAt)
	assert.Nil(t, m.LockedUntil)
}

func TestOutboxMessage_RecordFailure_Retry(t *testing.T) {
	now := time.Now().UTC()
	m := newPending(now)
	lock := now.Add(30 * time.Second)
	m.LockedUntil = &lock
	retryAt := now.Add(2 * time.Second)

	m.RecordFailure("broker unreachable", 3, retryAt)

	assert.Equal(t, OutboxPending, m.Status)
	assert.Equal(t, 1, m.RetryCount)
	assert.Nil(t, m.LockedUntil)
	assert.Equal(t, "broker unreachable", *m.ErrorMessage)
	assert.Equal(t, retryAt, m.ScheduledTime)
	assert.False(t, m.IsClaimable(now))
	assert.True(t, m.IsClaimable(retryAt))
}

func TestOutboxMessage_RecordFailure_Exhausted(t *testing.T) {
	now := time.Now().UTC()
	m := newPending(now)
	m.RetryCount = 2

	m.RecordFailure("broker unreachable", 3, now)

	assert.Equal(t, OutboxError, m.Status)
	assert.Equal(t, 3, m.RetryCount)
	assert.Equal(t, "broker unreachable", *m.ErrorMessage)
}
