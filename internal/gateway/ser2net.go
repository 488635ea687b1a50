package gateway

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/transport"
)

// TeeSink returns a transport.Sink that writes every line to each of sinks
// in turn, so the transport can drive the real serial port and a
// Ser2NetServer's broadcast simultaneously. The first error encountered (if
// any) is returned; writes to later sinks are still attempted.
func TeeSink(sinks ...transport.Sink) transport.Sink {
	return teeSink(sinks)
}

type teeSink []transport.Sink

func (t teeSink) Write(line string) error {
	var firstErr error
	for _, s := range t {
		if err := s.Write(line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ser2NetServer relays raw framed lines between this gateway's transport and
// any number of connected TCP clients, in the manner of a ser2net bridge:
// lines arriving from a client are treated as inbound wire traffic exactly
// like a line read from the serial port, and lines this gateway transmits
// are broadcast out to every connected client.
//
// Grounded on original_source/evohome/ser2net.go's Ser2NetServer/
// Ser2NetProtocol: connection_made/data_received/write become
// handleConn/the read loop/Broadcast, generalised from "one active
// protocol" to "one goroutine per connected client" since Go has no
// single-threaded event loop to piggyback on.
type Ser2NetServer struct {
	OnMessage func(*ramses.Message)

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewSer2NetServer returns a Ser2NetServer ready to Serve.
func NewSer2NetServer() *Ser2NetServer {
	return &Ser2NetServer{conns: make(map[net.Conn]struct{})}
}

// Serve listens on addr (e.g. ":8023") and relays traffic until ctx is
// cancelled.
func (s *Ser2NetServer) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		ln.Close()
		close(done)
	}()

	slog.Info("ser2net: listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				<-done
				return nil
			default:
				return err
			}
		}
		s.addConn(conn)
		go s.handleConn(conn)
	}
}

func (s *Ser2NetServer) addConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
	slog.Debug("ser2net: connection opened", "peer", conn.RemoteAddr())
}

func (s *Ser2NetServer) removeConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	conn.Close()
}

// handleConn reads lines from one client, stripping a leading telnet IAC
// byte (0xFF) the way the Python original's data_received does, and feeds
// each resulting line into OnMessage as if it had arrived over serial.
func (s *Ser2NetServer) handleConn(conn net.Conn) {
	defer s.removeConn(conn)

	scanner := bufio.NewScanner(conn)
	first := true
	for scanner.Scan() {
		raw := scanner.Bytes()
		if first && len(raw) > 0 && raw[0] == 0xFF {
			slog.Debug("ser2net: dropping leading telnet IAC byte", "peer", conn.RemoteAddr())
			raw = raw[1:]
		}
		first = false

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}

		pkt, err := ramses.ParsePacket(line, time.Now())
		if err != nil {
			slog.Debug("ser2net: unparsable line", "peer", conn.RemoteAddr(), "line", line, "err", err)
			continue
		}
		msg, err := ramses.DecodeMessage(pkt)
		if err != nil {
			slog.Debug("ser2net: undecodable packet", "peer", conn.RemoteAddr(), "pkt", pkt, "err", err)
			continue
		}
		if s.OnMessage != nil {
			s.OnMessage(&msg)
		}
	}
	slog.Debug("ser2net: connection closed", "peer", conn.RemoteAddr())
}

// Write implements transport.Sink, broadcasting line to every connected
// client — the network-facing half of the relay (teacher: Ser2NetServer.write).
func (s *Ser2NetServer) Write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
			slog.Debug("ser2net: write failed, dropping client", "peer", conn.RemoteAddr(), "err", err)
			delete(s.conns, conn)
			conn.Close()
		}
	}
	return nil
}
