// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmppbot/element"
	"mellium.im/xmppbot/room"
)

// rosterIDPrefix starts the id of every room occupant query.
const rosterIDPrefix = "get_users_in_room_"

// JoinRoom joins a room and adds it to the rooms that are joined again after a
// reconnect.
// If the session is offline the room is joined once it comes online.
func (s *Session) JoinRoom(ctx context.Context, r room.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dir.Add(r)
	if !s.connected {
		return nil
	}
	return s.joinRoom(ctx, r)
}

func (s *Session) joinRoom(ctx context.Context, r room.Spec) error {
	to, err := r.JID.Bare().WithResource(s.cfg.Name)
	if err != nil {
		return fmt.Errorf("xmppbot: cannot join %s as %q: %w", r.JID, s.cfg.Name, err)
	}

	x := element.NewNS(muc.NS, "x").Append(
		element.New("history", element.Attr("seconds", "1")),
	)
	if r.Password != "" {
		x = x.Append(element.New("password").AppendText(r.Password))
	}
	s.log.Info().Str("room", to.String()).Msg("joining room")
	err = s.send(ctx, element.New("presence", element.Attr("to", to.String())).Append(x))
	if err != nil {
		return err
	}
	if !s.cfg.UUIDOnJoin {
		return nil
	}

	// The room echoes the token back once we are in it and the history it
	// replays has been sent.
	token := uuid.NewString()
	s.dir.AddPending(token, r.JID)
	s.log.Debug().Str("room", r.JID.String()).Str("token", token).Msg("sending join acknowledgement token")
	return s.send(ctx, element.New("message",
		element.Attr("to", r.JID.Bare().String()),
		element.Attr("type", "groupchat"),
	).Append(element.New("body").AppendText(token)))
}

// LeaveRoom leaves a room and stops joining it after reconnects.
func (s *Session) LeaveRoom(ctx context.Context, roomJID jid.JID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dir.Remove(roomJID)
	to, err := roomJID.Bare().WithResource(s.cfg.Name)
	if err != nil {
		return fmt.Errorf("xmppbot: cannot leave %s as %q: %w", roomJID, s.cfg.Name, err)
	}
	s.log.Info().Str("room", to.String()).Msg("leaving room")
	return s.send(ctx, element.New("presence",
		element.Attr("to", to.String()),
		element.Attr("type", "unavailable"),
	))
}

// SendInvite invites a user to a room.
// An empty reason is omitted.
func (s *Session) SendInvite(ctx context.Context, roomJID, invitee jid.JID, reason string) error {
	x := element.NewNS(muc.NSConf, "x", element.Attr("jid", roomJID.Bare().String()))
	if reason != "" {
		x = x.SetAttr("reason", reason)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debug().Str("room", roomJID.String()).Str("invitee", invitee.String()).Msg("sending invite")
	return s.send(ctx, element.New("message", element.Attr("to", invitee.String())).Append(x))
}

// GetUsersInRoom asks a room for the nicknames of its occupants.
//
// The callback is called exactly once from the goroutine running Run: with the
// names when the room answers, with ErrRosterTimeout if it does not answer
// within the configured timeout, or with ErrClosed if the session stops first.
// If requestID is empty a unique id is generated.
// The callback is not called if an error is returned.
func (s *Session) GetUsersInRoom(ctx context.Context, roomJID jid.JID, callback func(names []string, err error), requestID string) error {
	if callback == nil {
		return errors.New("xmppbot: nil callback")
	}
	if requestID == "" {
		requestID = rosterIDPrefix + uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queries[requestID]; ok {
		return fmt.Errorf("xmppbot: request %q is already in progress", requestID)
	}

	iq := element.New("iq",
		element.Attr("from", s.jid.String()),
		element.Attr("id", requestID),
		element.Attr("to", roomJID.Bare().String()),
		element.Attr("type", "get"),
	).Append(element.NewNS(nsDiscoItems, "query"))
	s.log.Debug().Str("room", roomJID.String()).Str("id", requestID).Msg("fetching users in room")
	if err := s.send(ctx, iq); err != nil {
		return err
	}

	q := &rosterQuery{room: roomJID.Bare(), callback: callback}
	q.timer = time.AfterFunc(s.cfg.RosterTimeout, func() {
		select {
		case s.expired <- requestID:
		case <-s.done:
		}
	})
	s.queries[requestID] = q
	return nil
}

func (s *Session) expire(id string) {
	q, ok := s.queries[id]
	if !ok {
		return
	}
	delete(s.queries, id)
	q.timer.Stop()
	s.log.Warn().Str("room", q.room.String()).Str("id", id).Msg("timed out waiting for users in room")
	s.deliver(func() {
		q.callback(nil, ErrRosterTimeout)
	})
}
