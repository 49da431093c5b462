// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package room keeps track of the multi-user chat rooms a bot is in.
//
// The Directory type is a plain data structure: it performs no I/O and is not
// safe for concurrent use.
// It is expected to be owned by a single session which serializes access to
// it.
package room // import "mellium.im/xmppbot/room"

import (
	"fmt"
	"strings"

	"mellium.im/xmpp/jid"
)

// Spec names a room and the password used to enter it, if any.
type Spec struct {
	JID      jid.JID
	Password string
}

// String returns the room in the same "jid:password" form accepted by Parse.
// The password is masked.
func (s Spec) String() string {
	if s.Password == "" {
		return s.JID.String()
	}
	return s.JID.String() + ":********"
}

// Parse parses a room of the form "room@service" or "room@service:password".
// Only the first colon separates the password, so passwords may themselves
// contain colons.
// A colon at the very start of the string is not treated as a separator.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	addr, pass := s, ""
	if idx := strings.IndexByte(s, ':'); idx > 0 {
		addr, pass = s[:idx], s[idx+1:]
	}
	j, err := jid.Parse(addr)
	if err != nil {
		return Spec{}, fmt.Errorf("room: invalid room address %q: %w", addr, err)
	}
	if j.Localpart() == "" || j.Resourcepart() != "" {
		return Spec{}, fmt.Errorf("room: %q is not a bare room address", addr)
	}
	return Spec{JID: j, Password: pass}, nil
}

// ParseList parses a comma separated list of rooms.
// Empty entries are ignored.
func ParseList(s string) ([]Spec, error) {
	var rooms []Spec
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		r, err := Parse(item)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}
