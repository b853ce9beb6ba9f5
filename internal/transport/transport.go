// Package transport abstracts the single outbound messaging channel shared by
// all campaigns. The engine never owns the session itself; it only sends
// through it and observes whether it is connected.
package transport

import "context"

// Transport sends one message to one phone. Implementations must classify
// failures through appErrors.TransportError so the dispatcher can decide
// between retrying and giving up.
type Transport interface {
	Send(ctx context.Context, phone, text string) error
	// Connected reports whether the underlying session can send at all.
	// While false the dispatcher suspends sends without touching campaigns.
	Connected() bool
}
