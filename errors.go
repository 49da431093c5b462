// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"errors"
	"fmt"
)

// Errors returned by the session.
var (
	// ErrReconnectExhausted is returned from Run when the connection was lost
	// and could not be reestablished within the configured number of tries.
	ErrReconnectExhausted = errors.New("xmppbot: unable to reconnect to jabber server")

	// ErrNotConnected is returned when sending while the session is offline.
	ErrNotConnected = errors.New("xmppbot: not connected")

	// ErrRosterTimeout is passed to the callback of GetUsersInRoom if the room
	// does not answer in time.
	ErrRosterTimeout = errors.New("xmppbot: timed out waiting for room occupants")

	// ErrClosed is passed to the callbacks of outstanding requests when the
	// session stops.
	ErrClosed = errors.New("xmppbot: session closed")
)

// ConfigError is returned when a configuration option is missing or invalid.
type ConfigError struct {
	// Field is the name of the environment variable that sets the option.
	Field string
	Err   error
}

// Error satisfies the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("xmppbot: invalid %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
