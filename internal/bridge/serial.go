// Package bridge adapts the transport's line-oriented Sink interface onto a
// real RAMSES-II gateway device (an HGI80/evofw3 USB dongle) over a serial
// port (§7).
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// DefaultBaudRate is the speed an evofw3/HGI80 dongle listens at.
const DefaultBaudRate = 115200

// interFrameGap throttles transmission, mirroring the dongle's own inability
// to accept back-to-back frames without loss.
const interFrameGap = 25 * time.Millisecond

// SerialSink is a transport.Sink backed by a serial port. It also drives
// the read side: every decoded inbound Message is handed to OnMessage.
type SerialSink struct {
	port      serial.Port
	portName  string
	sendMu    sync.Mutex
	OnMessage func(*ramses.Message)
	OnError   func(error)
}

// Open opens the named serial port at baud (0 uses DefaultBaudRate) for
// 8N1 communication, the framing an HGI80/evofw3 expects.
func Open(portName string, baud int) (*SerialSink, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("bridge: open %s: %w", portName, err)
	}
	return &SerialSink{port: port, portName: portName}, nil
}

// Write implements transport.Sink, sending one framed command line.
func (s *SerialSink) Write(line string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if _, err := s.port.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("bridge: write: %w", err)
	}
	// The dongle can't keep up with back-to-back frames; space them out.
	time.Sleep(interFrameGap)
	return nil
}

// Listen reads the port line by line until ctx is cancelled, decoding each
// line into a ramses.Message and handing it to OnMessage. Lines that fail
// to parse (noise, partial frames) are logged and skipped, not fatal.
func (s *SerialSink) Listen(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.port.Close()
		close(done)
	}()

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pkt, err := ramses.ParsePacket(line, time.Now())
		if err != nil {
			slog.Debug("bridge: unparsable line", "line", line, "err", err)
			continue
		}
		msg, err := ramses.DecodeMessage(pkt)
		if err != nil {
			slog.Debug("bridge: undecodable packet", "pkt", pkt, "err", err)
			continue
		}
		if s.OnMessage != nil {
			s.OnMessage(&msg)
		}
	}

	select {
	case <-ctx.Done():
		<-done
		return nil
	default:
	}
	if err := scanner.Err(); err != nil {
		if s.OnError != nil {
			s.OnError(err)
		}
		return fmt.Errorf("bridge: read %s: %w", s.portName, err)
	}
	return nil
}

// Close releases the underlying serial port.
func (s *SerialSink) Close() error {
	return s.port.Close()
}
