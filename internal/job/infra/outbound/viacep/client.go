// Package viacep consulta direcciones brasileñas por CEP en el servicio público ViaCEP.
package viacep

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://viacep.com.br"

// Client implementa jobDomain.AddressLookup. No reintenta: los reintentos son del consumidor.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter // nil: sin límite
	log     *zap.Logger
}

// NewClient crea el cliente. rps <= 0 desactiva el limitador de peticiones por segundo.
func NewClient(baseURL string, timeout time.Duration, rps float64, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// viaCepResponse añade el marcador "erro" que ViaCEP devuelve para CEPs inexistentes.
type viaCepResponse struct {
	jobDomain.Address
	Erro json.RawMessage `json:"erro"`
}

// GetAddress devuelve (nil, nil) si el servicio responde sin resultado.
func (c *Client) GetAddress(ctx context.Context, cep string) (*jobDomain.Address, error) {
	if c.limiter != nil {
		// ViaCEP es un servicio público con cuota: se espera turno o se aborta con el contexto
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("viacep rate limiter: %w", err)
		}
	}

	cleanCep := strings.ReplaceAll(cep, "-", "")
	url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, cleanCep)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building viacep request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("viacep request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error("Failed to fetch address for CEP",
			zap.String("cep", cep),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return nil, nil
	}

	var out viaCepResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding viacep response: %w", err)
	}
	if isErrorMarker(out.Erro) {
		c.log.Warn("CEP not found in ViaCEP", zap.String("cep", cep))
		return nil, nil
	}
	return &out.Address, nil
}

// isErrorMarker acepta tanto true como "true".
func isErrorMarker(raw json.RawMessage) bool {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return v == "true"
}
