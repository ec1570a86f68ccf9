package ingest

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Default ports of the simulator's JSON datagram feeds.
const (
	DefaultMarketAddr = ":9000"
	DefaultSignalAddr = ":9001"

	maxDatagramSize = 4096
)

// UDPSource reads one JSON payload per datagram.
type UDPSource struct {
	mu   sync.Mutex
	conn net.PacketConn
	buf  []byte
}

func ListenUDP(addr string) (*UDPSource, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPSource{conn: conn, buf: make([]byte, maxDatagramSize)}, nil
}

func (s *UDPSource) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPSource) ReadFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	n, _, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	frame := make([]byte, n)
	copy(frame, s.buf[:n])
	return frame, nil
}

func (s *UDPSource) Close() error { return s.conn.Close() }
