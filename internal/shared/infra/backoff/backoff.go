// Package backoff calcula la espera entre reintentos de publicación.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy calcula la espera antes del reintento n (empezando en 1).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant devuelve siempre el mismo intervalo. Con Interval = 0 el reintento es inmediato.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential duplica la espera en cada intento: min(Initial * 2^(n-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(e.Initial, e.Max, attempt)
}

// ExponentialWithJitter aplica full jitter sobre la base exponencial: un valor
// aleatorio en [0, min(Initial * 2^(n-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := capped(e.Initial, e.Max, attempt)
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter, no criptografía
}

func capped(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	limit := maxDelay
	if limit <= 0 {
		limit = math.MaxInt64 // sin tope configurado
	}
	// se compara en float64: convertir un valor fuera de rango a Duration da negativos
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}

// FromConfig devuelve la estrategia del relay: exponencial con jitter, o inmediata si initial es 0.
func FromConfig(initial, maxDelay time.Duration) Strategy {
	if initial <= 0 {
		return NewConstant(0)
	}
	return NewExponentialWithJitter(initial, maxDelay)
}
