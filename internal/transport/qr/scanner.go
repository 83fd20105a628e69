package qr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNoActiveScan is returned when a result arrives for a scan that was
	// stopped or replaced.
	ErrNoActiveScan = errors.New("no active scan")
)

// HandleFunc consumes decoded QR text, usually by restoring a backup.
type HandleFunc func(ctx context.Context, text string) error

// Session identifies one scan attempt.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// Scanner allows a single active scan at a time. Starting a new scan stops
// the previous one, so stale camera results are ignored.
type Scanner struct {
	handle HandleFunc
	log    *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active *Session
}

func NewScanner(handle HandleFunc, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{handle: handle, log: logger, now: time.Now}
}

// Start stops any active scan and opens a new one.
func (s *Scanner) Start() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.log.Info("scan replaced", "session", s.active.ID)
	}
	session := Session{ID: uuid.NewString(), StartedAt: s.now().UTC()}
	s.active = &session
	return session
}

// Active returns the running scan, if any.
func (s *Scanner) Active() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Session{}, false
	}
	return *s.active, true
}

// Stop ends the scan with the given id. It reports whether it was running.
func (s *Scanner) Stop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != id {
		return false
	}
	s.active = nil
	return true
}

// Submit hands decoded text to the handler. The scan ends once the handler
// accepts the text; on failure it stays open for another attempt.
func (s *Scanner) Submit(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.ID != id {
		return errors.Wrapf(ErrNoActiveScan, "session %q", id)
	}
	if err := s.handle(ctx, text); err != nil {
		s.log.Info("scan result rejected", "session", id, "error", err)
		return err
	}
	s.active = nil
	return nil
}
