package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := NewConstant(250 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 250*time.Millisecond, s.Delay(attempt))
	}
}

func TestExponential(t *testing.T) {
	s := NewExponential(time.Second, 10*time.Second)

	assert.Equal(t, 1*time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 4*time.Second, s.Delay(3))
	assert.Equal(t, 8*time.Second, s.Delay(4))
	assert.Equal(t, 10*time.Second, s.Delay(5), "debe respetar el máximo")
	assert.Equal(t, 1*time.Second, s.Delay(0), "intentos < 1 se tratan como el primero")
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	s := NewExponentialWithJitter(time.Second, 5*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		upper := NewExponential(time.Second, 5*time.Second).Delay(attempt)
		for i := 0; i < 50; i++ {
			d := s.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, upper)
		}
	}
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, &Constant{}, FromConfig(0, time.Minute))
	assert.Equal(t, time.Duration(0), FromConfig(0, time.Minute).Delay(3))
	assert.IsType(t, &ExponentialWithJitter{}, FromConfig(time.Second, time.Minute))
}

func TestExponential_NoMaxNeverNegative(t *testing.T) {
	s := NewExponential(time.Second, 0)

	assert.Equal(t, 4*time.Second, s.Delay(3))
	for _, attempt := range []int{40, 64, 100, 10_000} {
		assert.Positive(t, s.Delay(attempt), "intento %d", attempt)
	}
	assert.Equal(t, time.Duration(math.MaxInt64), s.Delay(100))

	jitter := NewExponentialWithJitter(time.Second, 0)
	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(t, jitter.Delay(100), time.Duration(0))
	}
}
