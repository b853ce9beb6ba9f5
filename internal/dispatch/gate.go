package dispatch

import (
	"context"
	"sync"

	"github.com/fixhub/workshop-backend/internal/transport"
)

// TransportGate serializes every send through the one outbound session shared
// by all campaigns. Per-campaign throttling alone cannot stop two campaigns
// from bursting simultaneously; this lock can. It is created at worker start
// and handed to the scheduler, never an ambient global.
type TransportGate struct {
	mu sync.Mutex
	tr transport.Transport
}

func NewTransportGate(tr transport.Transport) *TransportGate {
	return &TransportGate{tr: tr}
}

func (g *TransportGate) Send(ctx context.Context, phone, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tr.Send(ctx, phone, text)
}

func (g *TransportGate) Connected() bool {
	return g.tr.Connected()
}
