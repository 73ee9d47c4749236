package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ScruffR/uCamIII/internal/config"
	"github.com/ScruffR/uCamIII/internal/metrics"
	"github.com/ScruffR/uCamIII/internal/stream"
)

// TCPServer accepts image uploads on the data port
type TCPServer struct {
	listener  net.Listener
	address   string
	config    *config.ReceiverConfig
	logger    *slog.Logger
	streamMgr *stream.Manager
	metrics   *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	conns  map[net.Conn]struct{}
	connMu sync.Mutex

	// Counters
	connectionsAccepted uint64
	acceptErrors        uint64
	bytesReceived       uint64
	mu                  sync.RWMutex
}

// NewTCPServer creates a new TCP server instance listening on address
func NewTCPServer(address string, cfg *config.ReceiverConfig, logger *slog.Logger, streamMgr *stream.Manager, m *metrics.Metrics) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPServer{
		address:   address,
		config:    cfg,
		logger:    logger,
		streamMgr: streamMgr,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Start binds the data port and begins accepting connections. A bind
// failure is returned as is; there is no retry.
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", s.address, err)
	}
	s.listener = listener

	s.logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.Int("read_buffer_size", s.config.ReadBufferSize),
		slog.String("wire_encoding", s.config.WireEncoding),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to finalize their files.
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping TCP server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing TCP listener", slog.String("error", err.Error()))
		}
	}

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("TCP server stopped",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("accept_errors", stats.AcceptErrors),
		slog.Uint64("bytes_received", stats.BytesReceived),
	)

	return nil
}

// acceptLoop accepts connections until the listener is closed
func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.logger.Info("Accept loop stopping due to context cancellation")
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.mu.Lock()
			s.acceptErrors++
			s.mu.Unlock()
			s.metrics.RecordAcceptError()

			s.logger.Error("Failed to accept connection", slog.String("error", err.Error()))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		s.connectionsAccepted++
		s.mu.Unlock()

		if !s.track(conn) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// track registers conn so Stop can close it. It refuses once shutdown began.
func (s *TCPServer) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// handleConnection streams one connection into its own output file
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	s.logger.Info("Data connection started", slog.String("remote_addr", remoteAddr))

	s.metrics.RecordConnectionOpened()
	defer s.metrics.RecordConnectionClosed()

	session, err := s.streamMgr.OpenSession(remoteAddr)
	if err != nil {
		s.logger.Error("Failed to open stream session",
			slog.String("remote_addr", remoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	idleTimeout := s.config.GetIdleTimeoutDuration()
	buffer := make([]byte, s.config.ReadBufferSize)

	for {
		if idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				session.Abort(fmt.Errorf("set read deadline: %w", err))
				return
			}
		}

		n, readErr := conn.Read(buffer)
		if n > 0 {
			s.mu.Lock()
			s.bytesReceived += uint64(n)
			s.mu.Unlock()

			if err := session.OnData(buffer[:n]); err != nil {
				session.Abort(err)
				return
			}
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			if err := session.OnEnd(); err != nil {
				s.logger.Debug("Stream ended uncleanly",
					slog.String("remote_addr", remoteAddr),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		session.Abort(readErr)
		return
	}
}

// GetStatistics returns current server statistics
func (s *TCPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		ConnectionsAccepted: s.connectionsAccepted,
		AcceptErrors:        s.acceptErrors,
		BytesReceived:       s.bytesReceived,
		ActiveConnections:   uint64(s.streamMgr.GetActiveSessionCount()),
	}
}

// ServerStatistics represents data-port counters
type ServerStatistics struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	AcceptErrors        uint64 `json:"accept_errors"`
	BytesReceived       uint64 `json:"bytes_received"`
	ActiveConnections   uint64 `json:"active_connections"`
}
