package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScruffR/uCamIII/internal/ledger"
	"github.com/ScruffR/uCamIII/internal/metrics"
	"github.com/ScruffR/uCamIII/internal/protocol"
	"github.com/ScruffR/uCamIII/internal/sequence"
)

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	WireEncoding  string
	Recorder      ledger.Recorder
	RecordTimeout time.Duration
}

// Manager owns the sequence allocator and tracks every open session
type Manager struct {
	sessions  map[uuid.UUID]*Session
	mu        sync.RWMutex
	logger    *slog.Logger
	allocator *sequence.Allocator
	metrics   *metrics.Metrics

	encoding      string
	recorder      ledger.Recorder
	recordTimeout time.Duration

	// Totals over the manager's lifetime
	statsMu   sync.Mutex
	opened    uint64
	completed uint64
	aborted   uint64
	failed    uint64
	written   int64
}

// Stats is a snapshot of manager counters
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	Opened         uint64 `json:"opened"`
	Completed      uint64 `json:"completed"`
	Aborted        uint64 `json:"aborted"`
	Failed         uint64 `json:"failed"`
	BytesWritten   int64  `json:"bytes_written"`
	SequenceCursor int    `json:"sequence_cursor"`
	OutputDir      string `json:"output_dir"`
}

// NewManager creates a stream manager writing through allocator. The output
// directory is created here if it does not exist yet.
func NewManager(logger *slog.Logger, allocator *sequence.Allocator, m *metrics.Metrics, config ManagerConfig) (*Manager, error) {
	if _, err := protocol.NewDecoder(config.WireEncoding, nil); err != nil {
		return nil, err
	}

	if err := allocator.EnsureDir(); err != nil {
		return nil, err
	}

	recorder := config.Recorder
	if recorder == nil {
		recorder = ledger.Noop{}
	}

	timeout := config.RecordTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Manager{
		sessions:      make(map[uuid.UUID]*Session),
		logger:        logger,
		allocator:     allocator,
		metrics:       m,
		encoding:      config.WireEncoding,
		recorder:      recorder,
		recordTimeout: timeout,
	}, nil
}

// OpenSession allocates an output file and registers a new session for the
// connection from remoteAddr.
func (m *Manager) OpenSession(remoteAddr string) (*Session, error) {
	slot, err := m.allocator.Create()
	if err != nil {
		m.metrics.RecordAllocationError()
		return nil, fmt.Errorf("failed to allocate output file: %w", err)
	}

	m.metrics.RecordAllocation(slot.Number)
	if slot.Number == 0 {
		m.logger.Warn("Sequence range exhausted, overwriting slot 0",
			slog.String("path", slot.Path),
		)
	}

	session, err := newSession(m, remoteAddr, slot)
	if err != nil {
		slot.File.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.statsMu.Lock()
	m.opened++
	m.statsMu.Unlock()

	m.logger.Debug("Stream session opened",
		slog.String("session_id", session.ID.String()),
		slog.String("remote_addr", remoteAddr),
		slog.String("path", slot.Path),
	)

	return session, nil
}

// GetSession retrieves an open session
func (m *Manager) GetSession(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of open sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all open sessions
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// GetStats returns the current counters
func (m *Manager) GetStats() Stats {
	m.statsMu.Lock()
	stats := Stats{
		Opened:       m.opened,
		Completed:    m.completed,
		Aborted:      m.aborted,
		Failed:       m.failed,
		BytesWritten: m.written,
	}
	m.statsMu.Unlock()

	stats.ActiveSessions = m.GetActiveSessionCount()
	stats.SequenceCursor = m.allocator.Cursor()
	stats.OutputDir = m.allocator.Dir()
	return stats
}

// Stop aborts every session still open. Their files are closed with
// whatever was written so far.
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream manager...")

	for _, session := range m.GetAllSessions() {
		session.Abort(fmt.Errorf("receiver shutting down"))
	}

	stats := m.GetStats()
	m.logger.Info("Stream manager stopped",
		slog.Uint64("opened", stats.Opened),
		slog.Uint64("completed", stats.Completed),
		slog.Uint64("aborted", stats.Aborted),
		slog.Uint64("failed", stats.Failed),
		slog.Int64("bytes_written", stats.BytesWritten),
	)
}

// finalize removes a closed session and reports it
func (m *Manager) finalize(session *Session, rec ledger.Record) {
	m.mu.Lock()
	delete(m.sessions, session.ID)
	m.mu.Unlock()

	m.statsMu.Lock()
	switch rec.Outcome {
	case ledger.OutcomeComplete:
		m.completed++
	case ledger.OutcomeAborted:
		m.aborted++
	default:
		m.failed++
	}
	m.written += rec.Bytes
	m.statsMu.Unlock()

	m.metrics.RecordTransfer(rec.Outcome, rec.Bytes, rec.FinishedAt.Sub(rec.StartedAt).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), m.recordTimeout)
	defer cancel()

	if err := m.recorder.Record(ctx, rec); err != nil {
		m.metrics.RecordLedgerWrite("error")
		m.logger.Error("Failed to record transfer",
			slog.String("session_id", rec.ID.String()),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	m.metrics.RecordLedgerWrite("ok")
}
