// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/ping"
	"mellium.im/xmppbot/element"
	"mellium.im/xmppbot/transport"
)

const (
	nsTLS  = "urn:ietf:params:xml:ns:xmpp-tls"
	nsSASL = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsBind = "urn:ietf:params:xml:ns:xmpp-bind"
)

// certs returns a server config with a self signed certificate for
// example.net and a client config that trusts it.
func certs(t *testing.T) (server, client *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "example.net"},
		DNSNames:              []string{"example.net"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("error creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("error parsing certificate: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	server = &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
	client = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return server, client
}

// server is the far end of a client stream, driven one step at a time.
type server struct {
	conn net.Conn
	d    *xml.Decoder
	n    int
}

func (s *server) write(str string) error {
	_, err := io.WriteString(s.conn, str)
	return err
}

// open waits for the client to open a stream and answers with features.
func (s *server) open(features string) error {
	s.d = xml.NewDecoder(s.conn)
	for {
		tok, err := s.d.Token()
		if err != nil {
			return err
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "stream" {
			break
		}
	}
	s.n++
	return s.write(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'` +
		` id='stream` + strconv.Itoa(s.n) + `' from='example.net' version='1.0' xml:lang='en'>` +
		`<stream:features>` + features + `</stream:features>`)
}

// next returns the next element sent by the client or io.EOF once the client
// closes its stream.
func (s *server) next() (element.Element, error) {
	for {
		tok, err := s.d.Token()
		if err != nil {
			return element.Element{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var el element.Element
			err := s.d.DecodeElement(&el, &t)
			return el, err
		case xml.EndElement:
			return element.Element{}, io.EOF
		}
	}
}

func (s *server) expect(space, local string) (element.Element, error) {
	el, err := s.next()
	if err != nil {
		return el, err
	}
	if n := el.Name(); n.Space != space || n.Local != local {
		return el, fmt.Errorf("want {%s}%s, got %v", space, local, el)
	}
	return el, nil
}

// login takes the client through STARTTLS if tlsCfg is set, SASL PLAIN, and
// resource binding.
func (s *server) login(tlsCfg *tls.Config) error {
	if tlsCfg != nil {
		if err := s.open(`<starttls xmlns='` + nsTLS + `'><required/></starttls>`); err != nil {
			return err
		}
		if _, err := s.expect(nsTLS, "starttls"); err != nil {
			return err
		}
		if err := s.write(`<proceed xmlns='` + nsTLS + `'/>`); err != nil {
			return err
		}
		s.conn = tls.Server(s.conn, tlsCfg)
	}

	err := s.open(`<mechanisms xmlns='` + nsSASL + `'><mechanism>PLAIN</mechanism></mechanisms>`)
	if err != nil {
		return err
	}
	auth, err := s.expect(nsSASL, "auth")
	if err != nil {
		return err
	}
	creds, err := base64.StdEncoding.DecodeString(auth.Text())
	if err != nil {
		return err
	}
	if mech := auth.Attr("mechanism"); mech != "PLAIN" || string(creds) != "\x00bot\x00secret" {
		return fmt.Errorf("wrong credentials for %s: %q", mech, creds)
	}
	if err := s.write(`<success xmlns='` + nsSASL + `'/>`); err != nil {
		return err
	}

	if err := s.open(`<bind xmlns='` + nsBind + `'/>`); err != nil {
		return err
	}
	iq, err := s.expect("jabber:client", "iq")
	if err != nil {
		return err
	}
	if _, ok := iq.Child(nsBind, "bind"); !ok {
		return fmt.Errorf("expected bind request, got %v", iq)
	}
	return s.write(`<iq type='result' id='` + iq.Attr("id") + `'><bind xmlns='` + nsBind + `'><jid>bot@example.net/bot</jid></bind></iq>`)
}

var onlineTestCases = []struct {
	starttls    bool
	legacy      bool
	disallowTLS bool
}{
	0: {starttls: true},
	1: {legacy: true},
	2: {disallowTLS: true},
}

func TestOnline(t *testing.T) {
	for i, tc := range onlineTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			serverTLS, clientTLS := certs(t)
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatalf("error listening: %v", err)
			}
			defer ln.Close()

			// Replies to the ping sent by the server, or an error.
			replies := make(chan []element.Element, 1)
			errs := make(chan error, 1)
			go func() {
				conn, err := ln.Accept()
				if err != nil {
					errs <- err
					return
				}
				defer conn.Close()
				if tc.legacy {
					conn = tls.Server(conn, serverTLS)
				}
				s := &server{conn: conn}
				var starttls *tls.Config
				if tc.starttls {
					starttls = serverTLS
				}
				if err := s.login(starttls); err != nil {
					errs <- err
					return
				}
				err = s.write(`<message from='alice@example.net/phone' to='bot@example.net/bot' type='chat' id='m1'><body>hi</body></message>` +
					`<iq type='get' id='srvping1' from='example.net' to='bot@example.net/bot'><ping xmlns='` + ping.NS + `'/></iq>` +
					`</stream:stream>`)
				if err != nil {
					errs <- err
					return
				}
				var got []element.Element
				for {
					el, err := s.next()
					if err != nil {
						break
					}
					if el.Attr("id") == "srvping1" {
						got = append(got, el)
					}
				}
				replies <- got
			}()

			c := transport.Dial(context.Background(), transport.Config{
				JID:         jid.MustParse("bot@example.net"),
				Password:    "secret",
				Host:        "127.0.0.1",
				Port:        ln.Addr().(*net.TCPAddr).Port,
				LegacyTLS:   tc.legacy,
				DisallowTLS: tc.disallowTLS,
				Mechanism:   "PLAIN",
				TLSConfig:   clientTLS,
			}, zerolog.Nop())
			defer c.Close()

			ev := nextEvent(t, c)
			if ev.Kind != transport.Online {
				select {
				case err := <-errs:
					t.Fatalf("server error: %v", err)
				default:
				}
				t.Fatalf("want online event, got %v (%v)", ev.Kind, ev.Err)
			}
			ev = nextEvent(t, c)
			if ev.Kind != transport.Stanza {
				t.Fatalf("want stanza event, got %v (%v)", ev.Kind, ev.Err)
			}
			msg := ev.Stanza
			if body, ok := msg.Child("", "body"); msg.Name().Local != "message" || msg.Attr("from") != "alice@example.net/phone" || !ok || body.Text() != "hi" {
				t.Errorf("wrong stanza: %v", msg)
			}
			if ev = nextEvent(t, c); ev.Kind != transport.Offline {
				t.Fatalf("want offline event, got %v (%v)", ev.Kind, ev.Err)
			}

			select {
			case got := <-replies:
				if len(got) != 1 {
					t.Fatalf("want exactly one reply to the ping, got %v", got)
				}
				if typ := got[0].Attr("type"); typ != "result" || got[0].Attr("to") != "example.net" {
					t.Errorf("wrong reply to the ping: %v", got[0])
				}
			case err := <-errs:
				t.Fatalf("server error: %v", err)
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for the server")
			}
		})
	}
}
