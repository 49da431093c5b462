// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"
	"strconv"
	"testing"

	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/transport"
)

var messageTestCases = []struct {
	prefix bool
	alias  string
	in     string
	ignore bool
	user   bot.User
	text   string
}{
	0: {
		in:   `<message type="groupchat" from="room@conference.example.net/alice"><body>hello</body></message>`,
		user: bot.User{ID: "alice", Name: "alice", Type: bot.GroupChat, Room: testRoom},
		text: "hello",
	},
	1: {
		in:     `<message type="groupchat" from="room@conference.example.net/bot"><body>echo</body></message>`,
		ignore: true,
	},
	2: {
		in:     `<message type="groupchat" from="room@conference.example.net"><body>subject changed</body></message>`,
		ignore: true,
	},
	3: {
		in:     `<message type="headline" from="example.net"><body>news</body></message>`,
		ignore: true,
	},
	4: {
		in:     `<message type="groupchat"><body>anonymous</body></message>`,
		ignore: true,
	},
	5: {
		in:     `<message type="groupchat" from="room@conference.example.net/alice"><subject>topic</subject></message>`,
		ignore: true,
	},
	6: {
		in:     `<message from="alice@example.net/phone"><body>no type</body></message>`,
		ignore: true,
	},
	7: {
		in: `<message type="chat" from="alice@example.net/phone"><body>hi</body></message>`,
		user: bot.User{
			ID: "alice", Name: "alice", Type: bot.Chat,
			PrivateChatJID: "alice@example.net/phone",
		},
		text: "hi",
	},
	8: {
		in: `<message type="direct" from="example.org"><body>hi</body></message>`,
		user: bot.User{
			ID: "example.org", Name: "example.org", Type: bot.Direct,
			PrivateChatJID: "example.org",
		},
		text: "hi",
	},
	9: {
		prefix: true,
		in:     `<message type="chat" from="alice@example.net/phone"><body>ping</body></message>`,
		user: bot.User{
			ID: "alice", Name: "alice", Type: bot.Chat,
			PrivateChatJID: "alice@example.net/phone",
		},
		text: "bot ping",
	},
	10: {
		prefix: true,
		in:     `<message type="chat" from="alice@example.net/phone"><body>BOT ping</body></message>`,
		user: bot.User{
			ID: "alice", Name: "alice", Type: bot.Chat,
			PrivateChatJID: "alice@example.net/phone",
		},
		text: "BOT ping",
	},
	11: {
		prefix: true,
		alias:  "!",
		in:     `<message type="chat" from="alice@example.net/phone"><body>!ping</body></message>`,
		user: bot.User{
			ID: "alice", Name: "alice", Type: bot.Chat,
			PrivateChatJID: "alice@example.net/phone",
		},
		text: "!ping",
	},
	12: {
		prefix: true,
		in:     `<message type="groupchat" from="room@conference.example.net/alice"><body>ping</body></message>`,
		user:   bot.User{ID: "alice", Name: "alice", Type: bot.GroupChat, Room: testRoom},
		text:   "ping",
	},
}

func TestMessage(t *testing.T) {
	for i, tc := range messageTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			cfg := testConfig()
			cfg.PMAddPrefix = tc.prefix
			cfg.Alias = tc.alias
			h := newHarness(t, cfg)
			h.online(t)

			h.handle(t, tc.in)
			msgs := h.robot.Messages()
			if tc.ignore {
				if len(msgs) != 0 {
					t.Fatalf("expected message to be ignored, got %+v", msgs)
				}
				return
			}
			if len(msgs) != 1 {
				t.Fatalf("expected one message, got %d", len(msgs))
			}
			msg := msgs[0]
			if msg.Kind != bot.Text {
				t.Errorf("wrong kind: want=%v, got=%v", bot.Text, msg.Kind)
			}
			if msg.User != tc.user {
				t.Errorf("wrong user:\nwant=%+v\n got=%+v", tc.user, msg.User)
			}
			if msg.Text != tc.text {
				t.Errorf("wrong text: want=%q, got=%q", tc.text, msg.Text)
			}
		})
	}
}

func TestMessageKnownPrivateJID(t *testing.T) {
	h := newHarness(t, testConfig())
	h.online(t)

	h.handle(t, `<presence from="room@conference.example.net/bot"/>`)
	h.handle(t, `<presence from="room@conference.example.net/alice"><x xmlns="http://jabber.org/protocol/muc#user"><item jid="alice@example.net/phone"/></x></presence>`)
	h.handle(t, `<message type="groupchat" from="room@conference.example.net/alice"><body>hi</body></message>`)

	msgs := h.robot.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected enter and text messages, got %+v", msgs)
	}
	if got := msgs[1].User.PrivateChatJID; got != "alice@example.net/phone" {
		t.Errorf("wrong private address: %q", got)
	}
}

func TestJoinAcknowledgement(t *testing.T) {
	cfg := testConfig()
	cfg.UUIDOnJoin = true
	h := newHarness(t, cfg)
	ctx := context.Background()
	err := h.withLock(func() error {
		h.connect(ctx)
		return h.handleEvent(ctx, transport.Event{Kind: transport.Online})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := h.dialer.Last().Sent()
	if len(sent) != 3 {
		t.Fatalf("expected presence, join, and token messages, got %d stanzas", len(sent))
	}
	tokenMsg := sent[2]
	if tokenMsg.Attr("to") != testRoom || tokenMsg.Attr("type") != "groupchat" {
		t.Errorf("token sent to the wrong place: %v", tokenMsg)
	}
	body, ok := tokenMsg.Child("", "body")
	if !ok || body.Text() == "" {
		t.Fatalf("token message has no body: %v", tokenMsg)
	}
	token := body.Text()

	const history = `<message type="groupchat" from="room@conference.example.net/alice"><body>old news</body></message>`
	h.handle(t, history)
	if msgs := h.robot.Messages(); len(msgs) != 0 {
		t.Fatalf("history delivered before join was acknowledged: %+v", msgs)
	}

	h.handle(t, `<message type="groupchat" from="room@conference.example.net/bot"><body>`+token+`</body></message>`)
	if msgs := h.robot.Messages(); len(msgs) != 0 {
		t.Fatalf("token delivered as a message: %+v", msgs)
	}

	h.handle(t, `<message type="groupchat" from="room@conference.example.net/alice"><body>new</body></message>`)
	msgs := h.robot.Messages()
	if len(msgs) != 1 || msgs[0].Text != "new" {
		t.Fatalf("expected message after acknowledgement, got %+v", msgs)
	}
	if n := h.dir.Pending(); n != 0 {
		t.Errorf("token was not consumed: %d pending", n)
	}
}
