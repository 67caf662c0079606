package chat

import (
	"context"
	"fmt"

	"PulseIM/logger"
)

// HandlerFunc processes one inbound frame for one connection.
type HandlerFunc func(ctx context.Context, c *Client, data map[string]any) error

// Dispatcher maps inbound event names to handlers. The table is built
// once per Server; per-connection state lives on the Client, so there
// is nothing to tear down when a connection goes away.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

// Dispatch runs the handler for the frame's event. An unknown event is
// logged and skipped, never fatal to the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, f *Frame) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		logger.Infof("[dispatch] no handler for event=%s conn=%s", f.Event, c.ConnID)
		return nil
	}
	if err := h(ctx, c, f.Data); err != nil {
		return fmt.Errorf("handle %s: %w", f.Event, err)
	}
	return nil
}

// Known reports whether an event has a handler (tests use this).
func (d *Dispatcher) Known(event string) bool {
	_, ok := d.handlers[event]
	return ok
}
