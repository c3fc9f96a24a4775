// Package dispatcher routes verified events to their reconciliation routine.
package dispatcher

import (
	"context"
	"strings"
	"sync"

	"github.com/smallbiznis/stripesync/internal/webhook/domain"
)

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]domain.HandlerFunc
}

func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]domain.HandlerFunc)}
}

// Register binds a handler to an event type. A later registration for the
// same type replaces the earlier one.
func (d *Dispatcher) Register(eventType string, handler domain.HandlerFunc) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = handler
}

func (d *Dispatcher) Handles(eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[strings.TrimSpace(eventType)]
	return ok
}

// Dispatch runs the routine registered for the event type. Unrecognized
// types report handled=false without error.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.Event) (bool, error) {
	if event == nil {
		return false, domain.ErrInvalidEvent
	}
	d.mu.RLock()
	handler, ok := d.handlers[event.Type()]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, handler(ctx, event)
}
