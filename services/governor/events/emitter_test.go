// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"fmt"
	"sync"
	"testing"
)

func TestEmitter_SubscribeAndEmit(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	var received []Event
	e.Subscribe(func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})

	e.Emit(Event{Type: TypeDenial, AgentID: "agent-1", Message: "blocked"})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].Type != TypeDenial {
		t.Errorf("Type = %v, want %v", received[0].Type, TypeDenial)
	}
	if received[0].ID == "" {
		t.Error("ID not assigned")
	}
	if received[0].Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()

	count := 0
	id := e.Subscribe(func(Event) { count++ })

	e.Emit(Event{Type: TypeEscalation})
	e.Unsubscribe(id)
	e.Emit(Event{Type: TypeEscalation})

	if count != 1 {
		t.Errorf("handler invoked %d times, want 1", count)
	}
}

// A panicking subscriber must not disturb the emit path or its peers.
func TestEmitter_HandlerPanicContained(t *testing.T) {
	e := NewEmitter()

	e.Subscribe(func(Event) { panic("bad handler") })
	healthy := 0
	e.Subscribe(func(Event) { healthy++ })

	e.Emit(Event{Type: TypeCircuitOpened})

	if healthy != 1 {
		t.Errorf("healthy handler invoked %d times, want 1", healthy)
	}
	if got := len(e.Recent()); got != 1 {
		t.Errorf("buffered events = %d, want 1", got)
	}
}

func TestEmitter_RecentBounded(t *testing.T) {
	e := NewEmitter(WithBufferSize(3))

	for i := 0; i < 10; i++ {
		e.Emit(Event{Type: TypeRecoveryExhausted, Message: fmt.Sprintf("event-%d", i)})
	}

	recent := e.Recent()
	if len(recent) != 3 {
		t.Fatalf("Recent() length = %d, want 3", len(recent))
	}
	// Oldest first, keeping only the tail.
	for i, ev := range recent {
		want := fmt.Sprintf("event-%d", 7+i)
		if ev.Message != want {
			t.Errorf("Recent()[%d].Message = %q, want %q", i, ev.Message, want)
		}
	}
}

func TestEmitter_RecentReturnsCopy(t *testing.T) {
	e := NewEmitter()
	e.Emit(Event{Type: TypeDenial, Message: "original"})

	recent := e.Recent()
	recent[0].Message = "mutated"

	if e.Recent()[0].Message != "original" {
		t.Error("mutation of the returned slice reached the buffer")
	}
}
