package relay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/logging"
)

type fakeConn struct {
	events    []*nostr.Event
	err       error
	authFirst bool
	authed    bool
	dead      bool
	closed    bool
	block     bool
}

func (c *fakeConn) query(ctx context.Context, _ nostr.Filter) ([]*nostr.Event, error) {
	if c.block {
		<-ctx.Done()
		return c.events, nil
	}
	if c.authFirst && !c.authed {
		return nil, &ClosedError{Reason: "auth-required: we only serve known users"}
	}
	return c.events, c.err
}

func (c *fakeConn) auth(context.Context, func(*nostr.Event) error) error {
	c.authed = true
	return nil
}

func (c *fakeConn) connected() bool { return !c.dead }
func (c *fakeConn) close() error    { c.closed = true; return nil }

func testSession(urls []string, conns map[string]*fakeConn, dials *int) *Session {
	return newSession(Options{URLs: urls, Logger: logging.Discard()}, func(_ context.Context, url string) (conn, error) {
		if dials != nil {
			*dials++
		}
		c, ok := conns[url]
		if !ok {
			return nil, errors.New("dial tcp: connection refused")
		}
		return c, nil
	})
}

func TestConnect_AllUnreachable(t *testing.T) {
	s := testSession([]string{"wss://a", "wss://b"}, nil, nil)
	err := s.connectAll(context.Background())
	if !fault.Is(err, fault.KindConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestConnect_PartialSucceeds(t *testing.T) {
	conns := map[string]*fakeConn{"wss://b": {}}
	s := testSession([]string{"wss://a", "wss://b"}, conns, nil)
	if err := s.connectAll(context.Background()); err != nil {
		t.Fatalf("expected success with one reachable relay, got %v", err)
	}
}

func TestQuery_ConcatenatesRelays(t *testing.T) {
	conns := map[string]*fakeConn{
		"wss://a": {events: []*nostr.Event{{ID: "1"}}},
		"wss://b": {events: []*nostr.Event{{ID: "1"}, {ID: "2"}}},
	}
	s := testSession([]string{"wss://a", "wss://b"}, conns, nil)

	evs, err := s.Query(context.Background(), nostr.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(evs) != 3 {
		t.Errorf("expected 3 events, got %d", len(evs))
	}
}

func TestQuery_OneRelayFailing(t *testing.T) {
	conns := map[string]*fakeConn{
		"wss://a": {err: errors.New("broken pipe")},
		"wss://b": {events: []*nostr.Event{{ID: "1"}}},
	}
	s := testSession([]string{"wss://a", "wss://b"}, conns, nil)

	evs, err := s.Query(context.Background(), nostr.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("expected 1 event, got %d", len(evs))
	}
}

func TestQuery_AllRelaysFailing(t *testing.T) {
	conns := map[string]*fakeConn{"wss://a": {err: errors.New("broken pipe")}}
	s := testSession([]string{"wss://a"}, conns, nil)

	_, err := s.Query(context.Background(), nostr.Filter{})
	if !fault.Is(err, fault.KindQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestQuery_UnreachableIsConnectionError(t *testing.T) {
	s := testSession([]string{"wss://a"}, nil, nil)
	_, err := s.Query(context.Background(), nostr.Filter{})
	if !fault.Is(err, fault.KindConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestQuery_DeadlineIsQueryError(t *testing.T) {
	conns := map[string]*fakeConn{"wss://a": {block: true, events: []*nostr.Event{{ID: "partial"}}}}
	s := testSession([]string{"wss://a"}, conns, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Query(ctx, nostr.Filter{})
	if !fault.Is(err, fault.KindQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
}

func TestQuery_ReconnectsDroppedRelay(t *testing.T) {
	c := &fakeConn{events: []*nostr.Event{{ID: "1"}}}
	conns := map[string]*fakeConn{"wss://a": c}
	dials := 0
	s := testSession([]string{"wss://a"}, conns, &dials)

	if err := s.connectAll(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.dead = true
	// redial yields a fresh healthy connection
	s.dial = func(context.Context, string) (conn, error) {
		dials++
		return &fakeConn{events: c.events}, nil
	}

	if _, err := s.Query(context.Background(), nostr.Filter{}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if dials != 2 {
		t.Errorf("expected a redial, got %d dials", dials)
	}
	if !c.closed {
		t.Error("dropped connection was not closed")
	}
}

func TestQuery_AuthenticatesOnDemand(t *testing.T) {
	c := &fakeConn{authFirst: true, events: []*nostr.Event{{ID: "1"}}}
	s := testSession([]string{"wss://a"}, map[string]*fakeConn{"wss://a": c}, nil)

	evs, err := s.Query(context.Background(), nostr.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !c.authed || len(evs) != 1 {
		t.Errorf("authed=%v events=%d", c.authed, len(evs))
	}
}

func TestClose(t *testing.T) {
	c := &fakeConn{}
	s := testSession([]string{"wss://a"}, map[string]*fakeConn{"wss://a": c}, nil)
	s.connectAll(context.Background())
	s.Close()
	if !c.closed {
		t.Error("expected connection to be closed")
	}
}

func TestQuery_ClosedForOtherReasonDoesNotAuthenticate(t *testing.T) {
	c := &fakeConn{err: &ClosedError{Reason: "blocked: filter too broad"}}
	s := testSession([]string{"wss://a"}, map[string]*fakeConn{"wss://a": c}, nil)

	_, err := s.Query(context.Background(), nostr.Filter{})
	if !fault.Is(err, fault.KindQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
	if c.authed {
		t.Error("authenticated on a non-auth CLOSED reason")
	}
}

func TestSocksDialer(t *testing.T) {
	if _, err := SocksDialer("127.0.0.1:9050"); err != nil {
		t.Fatalf("SocksDialer: %v", err)
	}
	for _, addr := range []string{"127.0.0.1", "", "127.0.0.1:"} {
		if _, err := SocksDialer(addr); err == nil {
			t.Errorf("SocksDialer(%q): expected error", addr)
		}
	}
}

func TestIsOnion(t *testing.T) {
	cases := map[string]bool{
		"ws://abcdefghij.onion":        true,
		"wss://ABCDEFGHIJ.ONION:444/x": true,
		"wss://relay.damus.io":         false,
		"wss://onion.example.com":      false,
	}
	for u, want := range cases {
		if got := isOnion(u); got != want {
			t.Errorf("isOnion(%q) = %v", u, got)
		}
	}
}

func TestRewriteHost(t *testing.T) {
	in := "GET /ws HTTP/1.1\r\nHost: 127.0.0.1:4321\r\nUpgrade: websocket\r\n\r\n[\"REQ\"]"
	br := bufio.NewReader(strings.NewReader(in))

	head, err := rewriteHost(br, "abcdefghij.onion")
	if err != nil {
		t.Fatalf("rewriteHost: %v", err)
	}
	want := "GET /ws HTTP/1.1\r\nHost: abcdefghij.onion\r\nUpgrade: websocket\r\n\r\n"
	if string(head) != want {
		t.Errorf("head = %q", head)
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != `["REQ"]` {
		t.Errorf("body after head was consumed: %q", rest)
	}
}
