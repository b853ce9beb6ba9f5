package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/fixhub/workshop-backend/internal/errors"
)

// Gateway talks to the outbound messaging gateway over HTTP. Network errors
// and 5xx responses are transient; 4xx responses are permanent (bad
// destination, rejected content).
type Gateway struct {
	baseURL   string
	token     string
	client    *http.Client
	connected atomic.Bool

	// statusTTL bounds how often Connected actually hits the gateway; the
	// dispatch loop calls it before every send.
	statusTTL time.Duration
	statusMu  sync.Mutex
	checkedAt time.Time
}

func NewGateway(baseURL, token string) *Gateway {
	g := &Gateway{
		baseURL:   baseURL,
		token:     token,
		client:    &http.Client{Timeout: 60 * time.Second},
		statusTTL: 10 * time.Second,
	}
	g.connected.Store(true)
	return g
}

type sendRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

func (g *Gateway) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(sendRequest{Phone: phone, Text: text})
	if err != nil {
		return appErrors.NewTransportError(false, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return appErrors.NewTransportError(false, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Timeouts and connection drops are worth retrying. A failing
		// gateway also means the session is likely down.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return appErrors.NewTransportError(true, "send timed out")
		}
		g.connected.Store(false)
		return appErrors.NewTransportError(true, err.Error())
	}
	defer resp.Body.Close()
	g.connected.Store(true)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return appErrors.NewTransportError(true, fmt.Sprintf("gateway returned %d", resp.StatusCode))
	default:
		return appErrors.NewTransportError(false, fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}
}

// Connected polls the gateway's session status endpoint, falling back to the
// last observed send outcome when the endpoint is unreachable. The result is
// cached for statusTTL so callers in a tight loop do not hammer the endpoint.
func (g *Gateway) Connected() bool {
	g.statusMu.Lock()
	if time.Since(g.checkedAt) < g.statusTTL {
		g.statusMu.Unlock()
		return g.connected.Load()
	}
	g.checkedAt = time.Now()
	g.statusMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/status", nil)
	if err != nil {
		return g.connected.Load()
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return g.connected.Load()
	}
	defer resp.Body.Close()

	var status struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return g.connected.Load()
	}
	g.connected.Store(status.Connected)
	return status.Connected
}

var _ Transport = (*Gateway)(nil)
