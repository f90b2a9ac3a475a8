// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package experiment

import (
	"fmt"
	"sync"
	"time"
)

// Status is one sampling iteration.
type Status struct {
	Time     time.Time
	A, B, C  float64 // sccm
	Humidity float64 // kg/m³
	Phase    Phase
}

// String renders the status line, columns aligned for log readers.
func (s Status) String() string {
	return fmt.Sprintf("%3.3f %3.3f %3.3f %2.3e", s.A, s.B, s.C, s.Humidity)
}

const subscriberBuffer = 16

// hub fans statuses out to subscribers without ever blocking the worker.
type hub struct {
	mu   sync.RWMutex
	subs map[chan Status]struct{}
}

func newHub() *hub { return &hub{subs: make(map[chan Status]struct{})} }

func (h *hub) subscribe() (<-chan Status, func()) {
	ch := make(chan Status, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(s Status) {
	h.mu.RLock()
	for ch := range h.subs {
		// Non-blocking send; drop if subscriber is slow
		select {
		case ch <- s:
		default:
		}
	}
	h.mu.RUnlock()
}
