// Package transport adapts the bancho Service onto concrete network
// fronts: a raw TCP socket speaking the framed packet protocol directly,
// and an HTTP front for clients that tunnel bancho over request/response.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dungeongate/bancho/internal/bancho"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
)

// flushInterval bounds how long a packet fanned in from another session's
// goroutine (a broadcast, a spectator frame) can sit in the outbound buffer
// before this connection's writer goroutine picks it up.
const flushInterval = 50 * time.Millisecond

// syncConn serializes writes from the read pump and the background flush
// goroutine, which otherwise race on the same socket.
type syncConn struct {
	net.Conn
	mu sync.Mutex
}

func (c *syncConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(b)
}

// TCPServer accepts raw bancho connections: a three-line login handshake
// followed by an unbroken stream of framed packets in both directions.
type TCPServer struct {
	svc      *bancho.Service
	listener net.Listener
	logger   *slog.Logger
}

// NewTCPServer constructs a TCPServer bound to svc.
func NewTCPServer(svc *bancho.Service, logger *slog.Logger) *TCPServer {
	return &TCPServer{svc: svc, logger: logger}
}

// Start listens on addr and begins accepting connections in the background.
func (t *TCPServer) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", addr, err)
	}
	t.listener = ln
	t.logger.Info("tcp server listening", "address", addr)

	go t.acceptLoop(ctx)
	return nil
}

// Stop closes the listener, unblocking acceptLoop.
func (t *TCPServer) Stop() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func (t *TCPServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				t.logger.Error("tcp accept failed", "error", err)
				continue
			}
		}
		go t.handle(ctx, conn)
	}
}

func (t *TCPServer) handle(ctx context.Context, rawConn net.Conn) {
	defer rawConn.Close()
	conn := &syncConn{Conn: rawConn}

	s := player.New(player.TransportTCP, conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)

	username, err := readLine(reader)
	if err != nil {
		return
	}
	passwordMD5, err := readLine(reader)
	if err != nil {
		return
	}
	clientData, err := readLine(reader)
	if err != nil {
		return
	}

	rawTerminate, err := t.svc.Login(ctx, s, username, passwordMD5, clientData)
	if rawTerminate != nil {
		_, _ = conn.Write(rawTerminate)
		return
	}
	if err != nil {
		t.logger.Info("tcp login rejected", "user", username, "error", err)
		_, _ = conn.Write(s.DrainOutbound())
		return
	}

	t.logger.Info("tcp login accepted", "user", username, "user_id", s.ID())
	s.SetCloser(conn)
	defer t.svc.Disconnect(ctx, s)

	done := make(chan struct{})
	defer close(done)
	go t.writer(conn, s, done)

	if err := t.pump(ctx, conn, reader, s); err != nil {
		t.logger.Debug("tcp session ended", "user_id", s.ID(), "error", err)
	}
}

// writer periodically flushes bytes that a foreign goroutine (a chat
// broadcast, a spectator frame fan-out) queued onto s's outbound buffer,
// independent of this connection's own inbound traffic.
func (t *TCPServer) writer(conn net.Conn, s *player.Session, done <-chan struct{}) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if b := s.DrainOutbound(); len(b) > 0 {
				if _, err := conn.Write(b); err != nil {
					return
				}
			}
		}
	}
}

// pump reads framed packets and dispatches them, flushing any reply bytes
// the dispatch itself produced before blocking on the next read.
func (t *TCPServer) pump(ctx context.Context, conn net.Conn, reader *bufio.Reader, s *player.Session) error {
	if b := s.DrainOutbound(); len(b) > 0 {
		if _, err := conn.Write(b); err != nil {
			return err
		}
	}

	for {
		frame, err := protocol.ReadFrame(reader)
		if err != nil {
			return err
		}

		if err := t.svc.Dispatch(ctx, s, protocol.RequestID(frame.ID), frame.Payload); err != nil {
			t.logger.Warn("dispatch error", "user_id", s.ID(), "error", err)
		}

		if b := s.DrainOutbound(); len(b) > 0 {
			if _, err := conn.Write(b); err != nil {
				return err
			}
		}
		if s.Closed() {
			return nil
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
