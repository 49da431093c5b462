// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpptest provides a fake transport for testing the adapter without a
// server.
package xmpptest // import "mellium.im/xmppbot/internal/xmpptest"

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"mellium.im/xmppbot/element"
	"mellium.im/xmppbot/transport"
)

// ErrClosed is returned when sending on a closed Transport.
var ErrClosed = errors.New("xmpptest: transport closed")

// Transport records the elements sent over it and delivers events injected
// with Emit.
type Transport struct {
	Config transport.Config

	// SendErr, if set, is returned from every call to Send.
	SendErr error

	// OnClose, if set, is called by Close before the transport is marked
	// closed.
	OnClose func()

	events chan transport.Event
	mu     sync.Mutex
	sent   []element.Element
	closed bool
}

// NewTransport returns a transport with room for size buffered events.
func NewTransport(size int) *Transport {
	return &Transport{events: make(chan transport.Event, size)}
}

// Events returns the channel of injected events.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Emit injects an event.
// It blocks if the event buffer is full.
func (t *Transport) Emit(ev transport.Event) {
	t.events <- ev
}

// Send records el.
func (t *Transport) Send(_ context.Context, el element.Element) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, el)
	return nil
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	if t.OnClose != nil {
		t.OnClose()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Sent returns the elements sent so far.
func (t *Transport) Sent() []element.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]element.Element(nil), t.sent...)
}

// Reset forgets the elements sent so far.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// Dialer creates a new Transport every time Dial is called.
type Dialer struct {
	// OnDial, if set, is called with every new transport before Dial returns.
	// It can be used to script the events a transport produces.
	OnDial func(n int, t *Transport)

	mu    sync.Mutex
	dials []*Transport
}

// Dial returns a new transport configured with cfg.
func (d *Dialer) Dial(_ context.Context, cfg transport.Config, _ zerolog.Logger) *Transport {
	t := NewTransport(16)
	t.Config = cfg
	d.mu.Lock()
	d.dials = append(d.dials, t)
	n := len(d.dials)
	d.mu.Unlock()
	if d.OnDial != nil {
		d.OnDial(n, t)
	}
	return t
}

// Dials returns every transport created so far in order.
func (d *Dialer) Dials() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Transport(nil), d.dials...)
}

// Last returns the most recently created transport or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dials) == 0 {
		return nil
	}
	return d.dials[len(d.dials)-1]
}
