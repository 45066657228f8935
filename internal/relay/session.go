// Package relay wraps a go-nostr connection set as the harvester's query
// session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/jobstr/harvester/internal/core/keys"
	"github.com/jobstr/harvester/internal/fault"
)

const defaultDialTimeout = 15 * time.Second

// conn is the slice of *nostr.Relay the session uses.
type conn interface {
	query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	auth(ctx context.Context, sign func(*nostr.Event) error) error
	connected() bool
	close() error
}

type dialFunc func(ctx context.Context, url string) (conn, error)

// Options configures Connect.
type Options struct {
	URLs        []string
	Keys        keys.Pair
	DialTimeout time.Duration
	Logger      *logrus.Logger

	// ProxyAddr is the SOCKS5 proxy for .onion relays. Without it onion
	// relays are unreachable.
	ProxyAddr string
}

// Session is a set of relay connections reused across cycles. It is not
// safe for concurrent use; the poller issues one query at a time.
type Session struct {
	urls        []string
	keys        keys.Pair
	conns       map[string]conn
	dial        dialFunc
	dialTimeout time.Duration
	log         *logrus.Entry

	socks   proxy.ContextDialer
	bridges map[string]*onionBridge
}

// Connect dials every relay. It succeeds when at least one relay is
// reachable; the others are retried on later queries.
//
// ctx bounds the lifetime of the connections, not just the dial.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	var s *Session
	s = newSession(opts, func(dctx context.Context, url string) (conn, error) {
		target := url
		if isOnion(url) {
			b, err := s.bridge(url)
			if err != nil {
				return nil, err
			}
			target = b.URL()
		}
		r := nostr.NewRelay(ctx, target)
		if err := r.Connect(dctx); err != nil {
			return nil, err
		}
		return &nostrConn{r: r}, nil
	})
	if opts.ProxyAddr != "" {
		d, err := SocksDialer(opts.ProxyAddr)
		if err != nil {
			return nil, fault.Wrap(fault.KindConfig, "proxy", err)
		}
		s.socks = d
	}
	if err := s.connectAll(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// bridge returns the loopback bridge for an onion relay, starting it on
// first use.
func (s *Session) bridge(url string) (*onionBridge, error) {
	if b, ok := s.bridges[url]; ok {
		return b, nil
	}
	if s.socks == nil {
		return nil, fmt.Errorf("%s is an onion relay and no proxy is configured", url)
	}
	b, err := newOnionBridge(url, s.socks, s.log)
	if err != nil {
		return nil, err
	}
	s.bridges[url] = b
	return b, nil
}

func newSession(opts Options, dial dialFunc) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &Session{
		urls:        opts.URLs,
		keys:        opts.Keys,
		conns:       make(map[string]conn, len(opts.URLs)),
		dial:        dial,
		dialTimeout: timeout,
		log:         logger.WithField("component", "relay"),
		bridges:     make(map[string]*onionBridge),
	}
}

func (s *Session) connectAll(ctx context.Context) error {
	var errs []error
	for _, url := range s.urls {
		if _, err := s.ensure(ctx, url); err != nil {
			s.log.WithError(err).Warnf("[relay %s] connect failed", url)
			errs = append(errs, err)
			continue
		}
		s.log.Infof("[relay %s] connected as %s", url, s.keys.Npub())
	}
	if len(errs) == len(s.urls) {
		return fault.Wrap(fault.KindConnection, "connect", errors.Join(errs...))
	}
	return nil
}

// ensure returns a live connection to url, redialing a dropped one.
func (s *Session) ensure(ctx context.Context, url string) (conn, error) {
	if c, ok := s.conns[url]; ok {
		if c.connected() {
			return c, nil
		}
		s.log.Warnf("[relay %s] connection lost, reconnecting", url)
		c.close()
		delete(s.conns, url)
	}

	dctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	c, err := s.dial(dctx, url)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnection, "connect "+url, err)
	}
	s.conns[url] = c
	return c, nil
}

// Query runs filter against each relay in turn and concatenates the
// results. It fails only if every relay failed. A deadline reached before
// a relay finished sending stored events is a query error, even though
// go-nostr hands back what it had collected.
func (s *Session) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	var (
		all       []*nostr.Event
		errs      []error
		attempted int
	)
	for _, url := range s.urls {
		attempted++
		evs, err := s.queryRelay(ctx, url, filter)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			s.log.WithError(err).Warnf("[relay %s] query failed", url)
			errs = append(errs, err)
			if ctx.Err() != nil {
				// the deadline is shared by all relays
				break
			}
			continue
		}
		s.log.Debugf("[relay %s] %d events", url, len(evs))
		all = append(all, evs...)
	}

	if len(errs) > 0 && len(errs) == attempted {
		kind := fault.KindQuery
		if allConnection(errs) {
			kind = fault.KindConnection
		}
		return nil, fault.Wrap(kind, "query", errors.Join(errs...))
	}
	return all, nil
}

func (s *Session) queryRelay(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	c, err := s.ensure(ctx, url)
	if err != nil {
		return nil, err
	}

	evs, err := c.query(ctx, filter)
	if err != nil && isAuthRequired(err) {
		s.log.Infof("[relay %s] auth required, authenticating", url)
		if aerr := c.auth(ctx, s.sign); aerr != nil {
			return nil, fault.Wrap(fault.KindQuery, "auth "+url, aerr)
		}
		evs, err = c.query(ctx, filter)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindQuery, "query "+url, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fault.Wrap(fault.KindQuery, "query "+url, ctx.Err())
	}
	return evs, nil
}

func (s *Session) sign(ev *nostr.Event) error {
	return ev.Sign(s.keys.Secret)
}

// Close closes every relay connection.
func (s *Session) Close() {
	for url, c := range s.conns {
		if err := c.close(); err != nil {
			s.log.WithError(err).Debugf("[relay %s] close", url)
		}
		delete(s.conns, url)
	}
	for url, b := range s.bridges {
		b.Close()
		delete(s.bridges, url)
	}
}

// ClosedError is a relay ending a subscription with a CLOSED message.
type ClosedError struct {
	Reason string
}

func (e *ClosedError) Error() string {
	return "relay closed subscription: " + e.Reason
}

func isAuthRequired(err error) bool {
	var closed *ClosedError
	return errors.As(err, &closed) && strings.HasPrefix(closed.Reason, "auth-required:")
}

func allConnection(errs []error) bool {
	for _, err := range errs {
		if !fault.Is(err, fault.KindConnection) {
			return false
		}
	}
	return true
}

type nostrConn struct {
	r *nostr.Relay
}

// query collects stored events until EOSE. Unlike QuerySync it returns as
// soon as the relay answers with CLOSED.
func (c *nostrConn) query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	sub, err := c.r.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()

	var events []*nostr.Event
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				if ctx.Err() != nil {
					return events, ctx.Err()
				}
				return events, errors.New("subscription ended before end of stored events")
			}
			events = append(events, ev)
		case <-sub.EndOfStoredEvents:
			return events, nil
		case reason := <-sub.ClosedReason:
			return nil, &ClosedError{Reason: reason}
		case <-ctx.Done():
			return events, ctx.Err()
		}
	}
}

func (c *nostrConn) auth(ctx context.Context, sign func(*nostr.Event) error) error {
	return c.r.Auth(ctx, sign)
}

func (c *nostrConn) connected() bool { return c.r.IsConnected() }

func (c *nostrConn) close() error { return c.r.Close() }
