package stream

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScruffR/uCamIII/internal/ledger"
	"github.com/ScruffR/uCamIII/internal/protocol"
	"github.com/ScruffR/uCamIII/internal/sequence"
)

// ErrSessionClosed is returned by OnData after the session was finalized
var ErrSessionClosed = errors.New("session already closed")

// Session is one inbound connection and the output file it owns
type Session struct {
	ID           uuid.UUID
	RemoteAddr   string
	Path         string
	Sequence     int
	StartTime    time.Time
	LastActivity time.Time

	file    *os.File
	out     *bufio.Writer
	decoder protocol.Decoder

	wireBytes int64
	failure   string
	closed    bool

	manager *Manager
	mu      sync.Mutex
}

func newSession(m *Manager, remoteAddr string, slot *sequence.Slot) (*Session, error) {
	out := bufio.NewWriter(slot.File)
	decoder, err := protocol.NewDecoder(m.encoding, out)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:           uuid.New(),
		RemoteAddr:   remoteAddr,
		Path:         slot.Path,
		Sequence:     slot.Number,
		StartTime:    now,
		LastActivity: now,
		file:         slot.File,
		out:          out,
		decoder:      decoder,
		manager:      m,
	}, nil
}

// OnData decodes chunk and appends the bytes to the output file. Chunk
// boundaries need not fall on byte boundaries of the encoding.
func (s *Session) OnData(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.LastActivity = time.Now()
	s.wireBytes += int64(len(chunk))

	before := s.decoder.Decoded()
	_, err := s.decoder.Write(chunk)
	s.manager.metrics.RecordBytes(len(chunk), int(s.decoder.Decoded()-before))

	if err != nil {
		if errors.Is(err, protocol.ErrInvalidHexDigit) {
			s.failure = ledger.OutcomeDecodeError
			s.manager.metrics.RecordDecodeError()
		} else {
			s.failure = ledger.OutcomeWriteError
		}
		return fmt.Errorf("session %s: %w", s.ID, err)
	}

	return nil
}

// OnEnd finalizes the file after the peer signalled end of stream. The
// returned error reports a dangling half byte or a failed flush; the file is
// closed either way.
func (s *Session) OnEnd() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	outcome := ledger.OutcomeComplete
	if s.failure != "" {
		outcome = s.failure
	}

	endErr := s.decoder.Finish()
	if endErr != nil {
		outcome = ledger.OutcomeDecodeError
	}
	if err := s.closeFile(); err != nil {
		outcome = ledger.OutcomeWriteError
		endErr = errors.Join(endErr, err)
	}
	rec := s.recordLocked(outcome)
	s.mu.Unlock()

	logger := s.manager.logger
	if outcome == ledger.OutcomeComplete {
		logger.Info("Transmission complete",
			slog.String("session_id", s.ID.String()),
			slog.String("path", s.Path),
			slog.Int64("bytes", rec.Bytes),
			slog.Duration("duration", rec.FinishedAt.Sub(rec.StartedAt)),
		)
	} else {
		logger.Warn("Transmission ended with errors",
			slog.String("session_id", s.ID.String()),
			slog.String("path", s.Path),
			slog.Int64("bytes", rec.Bytes),
			slog.String("outcome", outcome),
			slog.String("error", errString(endErr)),
		)
	}

	s.manager.finalize(s, rec)
	return endErr
}

// Abort finalizes the file after the connection failed. Bytes decoded so far
// stay on disk; the file is simply shorter than what was sent.
func (s *Session) Abort(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	outcome := ledger.OutcomeAborted
	if s.failure != "" {
		outcome = s.failure
	}

	// A half byte at the cut is dropped silently
	s.decoder.Finish()
	closeErr := s.closeFile()
	rec := s.recordLocked(outcome)
	s.mu.Unlock()

	s.manager.logger.Warn("Transmission aborted",
		slog.String("session_id", s.ID.String()),
		slog.String("remote_addr", s.RemoteAddr),
		slog.String("path", s.Path),
		slog.Int64("bytes", rec.Bytes),
		slog.String("outcome", outcome),
		slog.String("error", errString(errors.Join(cause, closeErr))),
	)

	s.manager.finalize(s, rec)
}

// closeFile flushes and closes the output file. Caller holds s.mu.
func (s *Session) closeFile() error {
	s.closed = true
	flushErr := s.out.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", s.Path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", s.Path, closeErr)
	}
	return nil
}

func (s *Session) recordLocked(outcome string) ledger.Record {
	return ledger.Record{
		ID:         s.ID,
		RemoteAddr: s.RemoteAddr,
		Path:       s.Path,
		Sequence:   s.Sequence,
		Bytes:      s.decoder.Decoded(),
		WireBytes:  s.wireBytes,
		StartedAt:  s.StartTime,
		FinishedAt: time.Now(),
		Outcome:    outcome,
	}
}

// GetSessionInfo returns a snapshot for monitoring
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		SessionID:    s.ID.String(),
		RemoteAddr:   s.RemoteAddr,
		Path:         s.Path,
		Sequence:     s.Sequence,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Duration:     time.Since(s.StartTime),
		WireBytes:    s.wireBytes,
		BytesWritten: s.decoder.Decoded(),
	}
}

// SessionInfo represents session information for the HTTP API
type SessionInfo struct {
	SessionID    string        `json:"session_id"`
	RemoteAddr   string        `json:"remote_addr"`
	Path         string        `json:"path"`
	Sequence     int           `json:"sequence"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	WireBytes    int64         `json:"wire_bytes"`
	BytesWritten int64         `json:"bytes_written"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
