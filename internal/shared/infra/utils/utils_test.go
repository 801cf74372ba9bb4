package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("still failing")
	})

	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 2, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestUnmarshalAndHandle(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var got payload
	err := UnmarshalAndHandle(zap.NewNop(), []byte(`{"name":"ana"}`), func(p payload) error {
		got = p
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ana", got.Name)

	handlerErr := errors.New("handler failed")
	err = UnmarshalAndHandle(zap.NewNop(), []byte(`{"name":"ana"}`), func(p payload) error { return handlerErr })
	assert.ErrorIs(t, err, handlerErr)

	called := false
	err = UnmarshalAndHandle(zap.NewNop(), []byte(`{bad json`), func(p payload) error {
		called = true
		return nil
	})
	assert.NoError(t, err, "un payload malformado se descarta")
	assert.False(t, called)
}
