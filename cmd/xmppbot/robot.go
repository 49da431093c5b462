// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmppbot"
	"mellium.im/xmppbot/bot"
)

const sendTimeout = 10 * time.Second

// responder answers commands addressed to the bot by name:
//
//	ping          replies PONG
//	echo <text>   sends text back
//	users         lists the occupants of the room
//	topic <text>  sets the room subject
type responder struct {
	log     zerolog.Logger
	session *xmppbot.Session
	name    string
	alias   string
}

func (r *responder) Emit(event string) {
	r.log.Info().Str("event", event).Msg("adapter event")
}

func (r *responder) Receive(msg bot.Message) {
	switch msg.Kind {
	case bot.Enter:
		r.log.Info().Str("user", msg.User.Name).Str("room", msg.User.Room).Msg("user entered")
		return
	case bot.Leave:
		r.log.Info().Str("user", msg.User.Name).Str("room", msg.User.Room).Msg("user left")
		return
	}

	cmd, ok := r.command(msg.Text)
	if !ok {
		return
	}
	env := msg.Envelope()
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	verb, arg, _ := strings.Cut(cmd, " ")
	var err error
	switch strings.ToLower(verb) {
	case "ping":
		err = r.session.Reply(ctx, env, "PONG")
	case "echo":
		err = r.session.Send(ctx, env, arg)
	case "topic":
		err = r.session.Topic(ctx, env, arg)
	case "users":
		err = r.users(ctx, env)
	default:
		return
	}
	if err != nil {
		r.log.Error().Err(err).Str("command", verb).Msg("error running command")
	}
}

func (r *responder) users(ctx context.Context, env bot.Envelope) error {
	if env.Room == "" {
		return r.session.Reply(ctx, env, "users only works in a room")
	}
	roomJID, err := jid.Parse(env.Room)
	if err != nil {
		return err
	}
	return r.session.GetUsersInRoom(ctx, roomJID, func(names []string, err error) {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		text := strings.Join(names, ", ")
		if err != nil {
			text = err.Error()
		}
		if err := r.session.Send(ctx, env, text); err != nil {
			r.log.Error().Err(err).Msg("error sending users in room")
		}
	}, "")
}

// command returns the text following the bot's name or alias.
func (r *responder) command(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{r.name, "@" + r.name, r.alias} {
		if prefix == "" || prefix == "@" {
			continue
		}
		if len(text) < len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
			continue
		}
		rest := strings.TrimLeft(text[len(prefix):], ":, ")
		return strings.TrimSpace(rest), rest != ""
	}
	return "", false
}
