package viacep

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 0, zap.NewNop())
}

func TestGetAddress_Success(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cep":"01001-000","logradouro":"Praça da Sé","bairro":"Sé","localidade":"São Paulo","uf":"SP","ddd":"11"}`))
	})

	addr, err := c.GetAddress(context.Background(), "01001-000")

	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "/ws/01001000/json/", gotPath, "el guion se elimina")
	assert.Equal(t, "Praça da Sé", addr.Logradouro)
	assert.Equal(t, "SP", addr.Uf)
	assert.Equal(t, "11", addr.Ddd)
}

func TestGetAddress_NoResult(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status no 2xx", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		}},
		{"erro booleano", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"erro": true}`))
		}},
		{"erro como texto", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"erro": "true"}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, tc.handler)
			addr, err := c.GetAddress(context.Background(), "99999999")
			assert.NoError(t, err)
			assert.Nil(t, addr)
		})
	}
}

func TestGetAddress_TransportErrors(t *testing.T) {
	t.Run("cuerpo inválido", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})
		_, err := c.GetAddress(context.Background(), "01001000")
		assert.Error(t, err)
	})

	t.Run("contexto cancelado", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.GetAddress(ctx, "01001000")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("servidor caído", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()
		c := NewClient(srv.URL, time.Second, 0, zap.NewNop())
		_, err := c.GetAddress(context.Background(), "01001000")
		assert.Error(t, err)
	})
}

func TestGetAddress_RateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"cep":"01001-000"}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, 1, zap.NewNop())

	_, err := c.GetAddress(context.Background(), "01001000")
	require.NoError(t, err)

	// el segundo token no llega antes de que venza el contexto
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetAddress(ctx, "01001000")

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
