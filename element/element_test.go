// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package element_test

import (
	"encoding/xml"
	"strconv"
	"strings"
	"testing"

	"mellium.im/xmlstream"
	"mellium.im/xmppbot/element"
)

var (
	_ xmlstream.Marshaler = element.Element{}
	_ xmlstream.WriterTo  = element.Element{}
	_ xml.Marshaler       = element.Element{}
	_ xml.Unmarshaler     = (*element.Element)(nil)
	_ element.Node        = element.Text("")
)

var stringTestCases = []struct {
	el  element.Element
	out string
}{
	0: {
		el:  element.New("presence"),
		out: `<presence></presence>`,
	},
	1: {
		el:  element.New("message", element.Attr("to", "room@muc.example.net"), element.Attr("type", "groupchat")).Append(element.New("body").AppendText("hi")),
		out: `<message to="room@muc.example.net" type="groupchat"><body>hi</body></message>`,
	},
	2: {
		el:  element.New("iq").Append(element.NewNS("urn:xmpp:ping", "ping")),
		out: `<iq><ping xmlns="urn:xmpp:ping"></ping></iq>`,
	},
	3: {
		el:  element.New("body").AppendText("a < b & c"),
		out: `<body>a &lt; b &amp; c</body>`,
	},
}

func TestString(t *testing.T) {
	for i, tc := range stringTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if s := tc.el.String(); s != tc.out {
				t.Errorf("wrong encoding: want=%s, got=%s", tc.out, s)
			}
		})
	}
}

func TestImmutable(t *testing.T) {
	base := element.New("message", element.Attr("to", "a@example.net"))
	withBody := base.Append(element.New("body").AppendText("one"))
	retargeted := withBody.SetAttr("to", "b@example.net")
	defaulted := withBody.DefaultAttr("to", "c@example.net").DefaultAttr("type", "chat")

	if n := len(base.Children()); n != 0 {
		t.Errorf("appending modified the original element: got %d children", n)
	}
	if to := withBody.Attr("to"); to != "a@example.net" {
		t.Errorf("SetAttr modified the original element: to=%q", to)
	}
	if to := retargeted.Attr("to"); to != "b@example.net" {
		t.Errorf("SetAttr did not replace the attribute: to=%q", to)
	}
	if n := len(retargeted.Attrs()); n != 1 {
		t.Errorf("SetAttr duplicated the attribute: got %d attributes", n)
	}
	if to := defaulted.Attr("to"); to != "a@example.net" {
		t.Errorf("DefaultAttr overwrote an existing attribute: to=%q", to)
	}
	if typ := defaulted.Attr("type"); typ != "chat" {
		t.Errorf("DefaultAttr did not add a missing attribute: type=%q", typ)
	}
	if _, ok := withBody.LookupAttr("type"); ok {
		t.Errorf("DefaultAttr modified the original element")
	}
}

func TestDecode(t *testing.T) {
	const in = `<message xmlns="jabber:client" from="room@muc.example.net/alice" type="groupchat">
  <body>hello</body>
  <x xmlns="http://jabber.org/protocol/muc#user"><item jid="alice@example.net/phone"/></x>
</message>`
	el, err := element.Decode(xml.NewDecoder(strings.NewReader(in)))
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if name := el.Name(); name.Local != "message" || name.Space != "jabber:client" {
		t.Errorf("wrong name: %+v", name)
	}
	if n := len(el.Attrs()); n != 2 {
		t.Errorf("namespace declarations should not be kept as attributes: got %d attributes", n)
	}
	body, ok := el.Child("", "body")
	if !ok {
		t.Fatalf("expected body child")
	}
	if body.Text() != "hello" {
		t.Errorf("wrong body text: %q", body.Text())
	}
	x, ok := el.Child("http://jabber.org/protocol/muc#user", "x")
	if !ok {
		t.Fatalf("expected muc#user child")
	}
	item, ok := x.Child("http://jabber.org/protocol/muc#user", "item")
	if !ok {
		t.Fatalf("expected item child")
	}
	if j := item.Attr("jid"); j != "alice@example.net/phone" {
		t.Errorf("wrong item jid: %q", j)
	}
	if _, ok := el.Child("urn:example", "x"); ok {
		t.Errorf("child lookup ignored the namespace")
	}
	if n := len(el.Children()); n != 2 {
		t.Errorf("wrong number of child elements: %d", n)
	}
}

var parseTestCases = []struct {
	in    string
	err   bool
	local string
}{
	0: {in: "hello", err: true},
	1: {in: "<b>bold</b>", local: "b"},
	2: {in: "  <p>one <i>two</i></p>\n", local: "p"},
	3: {in: "<b>one</b><b>two</b>", err: true},
	4: {in: "hello <b>world</b>", err: true},
	5: {in: "<b>unclosed", err: true},
	6: {in: "", err: true},
	7: {in: "1 < 2", err: true},
}

func TestParse(t *testing.T) {
	for i, tc := range parseTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			el, err := element.Parse(tc.in)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected error parsing %q, got element %s", tc.in, el)
			case !tc.err && err != nil:
				t.Fatalf("unexpected error parsing %q: %v", tc.in, err)
			}
			if !tc.err && el.Name().Local != tc.local {
				t.Errorf("wrong root: want=%q, got=%q", tc.local, el.Name().Local)
			}
		})
	}
}

func TestRoundTripNested(t *testing.T) {
	el, err := element.Parse(`<p>one <i>two</i> three</p>`)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	if s := el.String(); s != `<p>one <i>two</i> three</p>` {
		t.Errorf("wrong encoding after parse: %s", s)
	}
	if el.Text() != "one  three" {
		t.Errorf("Text should only include direct character data, got %q", el.Text())
	}
}
