// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"
	"fmt"
	"strings"

	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/element"
)

// Send sends messages to the room or user in env.
//
// Each part is either a string, which becomes the body of a new message, or an
// element.Element which is sent as is after filling in its "to" and "type"
// attributes if they are missing.
// Strings that are well formed XML are also attached as XHTML-IM so that
// clients can render them.
//
// Private users are answered at their real address when it is known and at
// their in-room address otherwise.
func (s *Session) Send(ctx context.Context, env bot.Envelope, parts ...interface{}) error {
	to, typ := address(env)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, part := range parts {
		msg, err := outbound(to, typ, part)
		if err != nil {
			return err
		}
		s.log.Debug().Str("to", to).Stringer("stanza", msg).Msg("sending message")
		if err := s.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Reply is like Send except that strings are prefixed with the name of the
// user in env.
func (s *Session) Reply(ctx context.Context, env bot.Envelope, parts ...interface{}) error {
	prefixed := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		if str, ok := part.(string); ok {
			part = env.User.Name + ": " + str
		}
		prefixed = append(prefixed, part)
	}
	return s.Send(ctx, env, prefixed...)
}

// Topic sets the subject of the room in env to the lines joined by newlines.
func (s *Session) Topic(ctx context.Context, env bot.Envelope, lines ...string) error {
	typ := env.User.Type
	if typ == "" {
		typ = bot.GroupChat
	}
	msg := element.New("message",
		element.Attr("to", env.Room),
		element.Attr("type", string(typ)),
	).Append(element.New("subject").AppendText(strings.Join(lines, "\n")))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debug().Str("room", env.Room).Msg("setting topic")
	return s.send(ctx, msg)
}

func address(env bot.Envelope) (string, bot.MessageType) {
	to := env.Room
	if env.User.Type.Private() {
		to = env.User.PrivateChatJID
		if to == "" {
			to = env.Room + "/" + env.User.Name
		}
	}
	typ := env.User.Type
	if typ == "" {
		typ = bot.GroupChat
	}
	return to, typ
}

func outbound(to string, typ bot.MessageType, part interface{}) (element.Element, error) {
	switch p := part.(type) {
	case element.Element:
		return p.DefaultAttr("to", to).DefaultAttr("type", string(typ)), nil
	case string:
		msg := element.New("message",
			element.Attr("to", to),
			element.Attr("type", string(typ)),
		).Append(element.New("body").AppendText(p))
		if rich, err := element.Parse(p); err == nil {
			msg = msg.Append(element.NewNS(nsXHTMLIM, "html").Append(
				element.NewNS(nsXHTML, "body").Append(rich),
			))
		}
		return msg, nil
	}
	return element.Element{}, fmt.Errorf("xmppbot: cannot send message part of type %T", part)
}
