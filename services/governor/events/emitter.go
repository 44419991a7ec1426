// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultBufferSize is the default size of the event ring buffer.
const defaultBufferSize = 256

// Emitter broadcasts governance events to subscribers and keeps a bounded
// ring buffer of recent events for inspection.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]Handler
	buffer        []Event
	bufferSize    int
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the event buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// NewEmitter creates an event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]Handler),
		bufferSize:    defaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a handler for all events.
//
// Outputs:
//   - string: Subscription id, usable with Unsubscribe.
func (e *Emitter) Subscribe(handler Handler) string {
	id := uuid.NewString()

	e.mu.Lock()
	e.subscriptions[id] = handler
	e.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription.
func (e *Emitter) Unsubscribe(id string) {
	e.mu.Lock()
	delete(e.subscriptions, id)
	e.mu.Unlock()
}

// Emit publishes an event to all subscribers.
//
// Handler panics are contained and logged so one misbehaving subscriber
// cannot disturb the emitting path.
func (e *Emitter) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.Lock()
	e.buffer = append(e.buffer, event)
	if len(e.buffer) > e.bufferSize {
		e.buffer = e.buffer[len(e.buffer)-e.bufferSize:]
	}
	handlers := make([]Handler, 0, len(e.subscriptions))
	for _, h := range e.subscriptions {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event handler panicked",
						slog.String("event_type", string(event.Type)),
						slog.Any("panic", r),
					)
				}
			}()
			h(event)
		}()
	}
}

// Recent returns a copy of the buffered events, oldest first.
func (e *Emitter) Recent() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}
