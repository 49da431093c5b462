// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package room

import (
	"mellium.im/xmpp/jid"
)

// Directory tracks room membership, the real addresses of occupants seen in
// rooms, and the join acknowledgements that are still outstanding.
type Directory struct {
	rooms   []Spec
	private map[string]jid.JID
	pending map[string]jid.JID
	joined  map[string]struct{}
}

// NewDirectory returns a directory containing rooms.
// Duplicate rooms are collapsed and the last password wins.
func NewDirectory(rooms ...Spec) *Directory {
	d := &Directory{
		private: make(map[string]jid.JID),
		pending: make(map[string]jid.JID),
		joined:  make(map[string]struct{}),
	}
	for _, r := range rooms {
		d.Add(r)
	}
	return d
}

func key(j jid.JID) string {
	return j.Bare().String()
}

// Rooms returns a copy of the rooms in the directory in the order they were
// added.
func (d *Directory) Rooms() []Spec {
	return append([]Spec(nil), d.rooms...)
}

// Add adds a room to the directory.
// If the room is already present its password is replaced and Add reports
// false.
func (d *Directory) Add(r Spec) bool {
	k := key(r.JID)
	for i, existing := range d.rooms {
		if key(existing.JID) == k {
			d.rooms[i].Password = r.Password
			return false
		}
	}
	r.JID = r.JID.Bare()
	d.rooms = append(d.rooms, r)
	return true
}

// Remove removes a room from the directory along with its joined state and any
// outstanding join acknowledgements.
func (d *Directory) Remove(room jid.JID) (Spec, bool) {
	k := key(room)
	delete(d.joined, k)
	for token, r := range d.pending {
		if key(r) == k {
			delete(d.pending, token)
		}
	}
	for i, r := range d.rooms {
		if key(r.JID) == k {
			d.rooms = append(d.rooms[:i:i], d.rooms[i+1:]...)
			return r, true
		}
	}
	return Spec{}, false
}

// Lookup returns the room matching the bare form of room.
func (d *Directory) Lookup(room jid.JID) (Spec, bool) {
	k := key(room)
	for _, r := range d.rooms {
		if key(r.JID) == k {
			return r, true
		}
	}
	return Spec{}, false
}

// Contains reports whether the bare form of room is in the directory.
func (d *Directory) Contains(room jid.JID) bool {
	_, ok := d.Lookup(room)
	return ok
}

// SetPrivateJID records the real address of a room occupant.
// Occupants are keyed by their full in-room address (room@service/nick).
func (d *Directory) SetPrivateJID(occupant, addr jid.JID) {
	d.private[occupant.String()] = addr
}

// ForgetPrivateJID removes any real address recorded for occupant.
func (d *Directory) ForgetPrivateJID(occupant jid.JID) {
	delete(d.private, occupant.String())
}

// PrivateJID returns the real address recorded for occupant.
func (d *Directory) PrivateJID(occupant jid.JID) (jid.JID, bool) {
	j, ok := d.private[occupant.String()]
	return j, ok
}

// AddPending records a join acknowledgement token sent to room.
func (d *Directory) AddPending(token string, room jid.JID) {
	d.pending[token] = room.Bare()
}

// Pending returns the number of outstanding join acknowledgements.
func (d *Directory) Pending() int {
	return len(d.pending)
}

// ConfirmJoin consumes the join acknowledgement token and marks its room as
// joined.
// It reports false if the token is unknown or has already been consumed.
func (d *Directory) ConfirmJoin(token string) (jid.JID, bool) {
	room, ok := d.pending[token]
	if !ok {
		return jid.JID{}, false
	}
	delete(d.pending, token)
	d.joined[key(room)] = struct{}{}
	return room, true
}

// Joined reports whether a join acknowledgement has been seen for room.
func (d *Directory) Joined(room jid.JID) bool {
	_, ok := d.joined[key(room)]
	return ok
}

// ResetJoins forgets all joined rooms and outstanding acknowledgements.
// It is used when the connection is lost and rooms must be joined again.
func (d *Directory) ResetJoins() {
	d.pending = make(map[string]jid.JID)
	d.joined = make(map[string]struct{})
}
