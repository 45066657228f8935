package relay

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const maxHandshakeHead = 16 << 10

// SocksDialer returns a SOCKS5 dialer for the proxy at addr. Hostnames are
// resolved by the proxy, which is what .onion addresses need.
func SocksDialer(addr string) (proxy.ContextDialer, error) {
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return nil, fmt.Errorf("proxy %q: host:port is required", addr)
	}
	d, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("proxy %q: %w", addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy %q: dialer %T has no DialContext", addr, d)
	}
	return cd, nil
}

func isOnion(relayURL string) bool {
	u, err := url.Parse(relayURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}

// onionBridge exposes one .onion relay on a loopback port. go-nostr dials
// relays with a plain net.Dialer, so the SOCKS5 hop happens here: each
// accepted connection is tunnelled to the onion host, with TLS for wss://
// and the Host header of the handshake restored to the onion name.
type onionBridge struct {
	target *url.URL
	addr   string // onion host:port
	socks  proxy.ContextDialer
	ln     net.Listener
	log    *logrus.Entry
}

func newOnionBridge(relayURL string, socks proxy.ContextDialer, log *logrus.Entry) (*onionBridge, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("relay url %q: %w", relayURL, err)
	}
	port := u.Port()
	switch {
	case port != "":
	case u.Scheme == "wss":
		port = "443"
	default:
		port = "80"
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("onion bridge for %s: %w", relayURL, err)
	}
	b := &onionBridge{
		target: u,
		addr:   net.JoinHostPort(u.Hostname(), port),
		socks:  socks,
		ln:     ln,
		log:    log.WithField("onion", u.Host),
	}
	go b.serve()
	return b, nil
}

// URL is the loopback websocket URL go-nostr should dial.
func (b *onionBridge) URL() string {
	u := *b.target
	u.Scheme = "ws"
	u.Host = b.ln.Addr().String()
	return u.String()
}

func (b *onionBridge) Close() error {
	return b.ln.Close()
}

func (b *onionBridge) serve() {
	for {
		c, err := b.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.log.WithError(err).Warn("[onion] accept failed")
			}
			return
		}
		go b.handle(c)
	}
}

func (b *onionBridge) handle(client net.Conn) {
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	upstream, err := b.socks.DialContext(ctx, "tcp", b.addr)
	cancel()
	if err != nil {
		b.log.WithError(err).Warnf("[onion] dial %s through proxy failed", b.addr)
		return
	}
	if b.target.Scheme == "wss" {
		upstream = tls.Client(upstream, &tls.Config{ServerName: b.target.Hostname()})
	}
	defer upstream.Close()

	br := bufio.NewReader(client)
	head, err := rewriteHost(br, b.target.Host)
	if err != nil {
		b.log.WithError(err).Warn("[onion] bad handshake from client")
		return
	}
	if _, err := upstream.Write(head); err != nil {
		b.log.WithError(err).Warnf("[onion] write to %s failed", b.addr)
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(upstream, br)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(client, upstream)
		done <- struct{}{}
	}()
	<-done
}

// rewriteHost reads the HTTP request head from br and replaces its Host
// header with host.
func rewriteHost(br *bufio.Reader, host string) ([]byte, error) {
	var head bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if len(line) >= 5 && strings.EqualFold(line[:5], "host:") {
			line = "Host: " + host + "\r\n"
		}
		head.WriteString(line)
		if line == "\r\n" || line == "\n" {
			return head.Bytes(), nil
		}
		if head.Len() > maxHandshakeHead {
			return nil, fmt.Errorf("handshake head exceeds %d bytes", maxHandshakeHead)
		}
	}
}
