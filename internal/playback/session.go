package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-composer/internal/logging"
)

var (
	ErrSessionNotFound = errors.New("preview session not found")
	ErrInvalidDuration = errors.New("preview duration must be positive")
)

// Options control how a preview plays. Previews start muted and looping
// unless told otherwise.
type Options struct {
	Loop  bool
	Muted bool
}

func DefaultOptions() Options {
	return Options{Loop: true, Muted: true}
}

// Session tracks the playhead of one preview of a finished export. When the
// playhead reaches the end the current Ended channel is closed; a looping
// session then starts over from zero.
type Session struct {
	ID       string
	ExportID string
	Path     string
	Duration time.Duration

	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	startedAt time.Time
	playing   bool
	plays     int
	gen       int
	ended     chan struct{}
	timer     *time.Timer
	closed    bool
}

type Status struct {
	ID        string  `json:"id"`
	ExportID  string  `json:"export_id"`
	Playing   bool    `json:"playing"`
	PositionS float64 `json:"position_s"`
	DurationS float64 `json:"duration_s"`
	Plays     int     `json:"plays"`
	Loop      bool    `json:"loop"`
	Muted     bool    `json:"muted"`
}

func newSession(exportID, path string, d time.Duration, opts Options, logger *slog.Logger) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		ExportID: exportID,
		Path:     path,
		Duration: d,
		opts:     opts,
		ended:    make(chan struct{}),
	}
	s.logger = logger.With("session_id", s.ID)
	s.mu.Lock()
	s.playLocked()
	s.mu.Unlock()
	return s
}

// playLocked starts a playthrough from zero. Callers hold s.mu.
func (s *Session) playLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.startedAt = time.Now()
	s.playing = true
	s.timer = time.AfterFunc(s.Duration, func() { s.reachedEnd(gen) })
}

func (s *Session) reachedEnd(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ended := s.ended
	s.plays++
	s.ended = make(chan struct{})
	if s.opts.Loop {
		s.playLocked()
	} else {
		s.playing = false
	}
	plays := s.plays
	s.mu.Unlock()

	s.logger.Debug("preview reached end", "plays", plays, "loop", s.opts.Loop)
	close(ended)
}

// Ended returns a channel closed when the current playthrough ends.
func (s *Session) Ended() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Restart seeks back to zero and plays, whether or not the preview ended.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.playLocked()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.Duration
	if s.playing {
		pos = min(time.Since(s.startedAt), s.Duration)
	}
	return Status{
		ID:        s.ID,
		ExportID:  s.ExportID,
		Playing:   s.playing,
		PositionS: pos.Seconds(),
		DurationS: s.Duration.Seconds(),
		Plays:     s.plays,
		Loop:      s.opts.Loop,
		Muted:     s.opts.Muted,
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.playing = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Sessions holds the open previews. A slot names at most one session;
// opening into an occupied slot closes the previous occupant.
type Sessions struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	slots    map[string]string // slot -> session ID
	slotOf   map[string]string // session ID -> slot
}

func NewSessions(logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sessions{
		logger:   logging.WithComponent(logger, "preview"),
		sessions: make(map[string]*Session),
		slots:    make(map[string]string),
		slotOf:   make(map[string]string),
	}
}

func (m *Sessions) Open(exportID, path string, d time.Duration, opts Options) (*Session, error) {
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	s := newSession(exportID, path, d, opts, m.logger)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("preview opened", "session_id", s.ID, "export_id", exportID, "loop", opts.Loop, "muted", opts.Muted)
	return s, nil
}

// OpenInSlot opens a preview that replaces whatever session currently holds
// slot. The agent uses the composition ID so repeated exports of one
// composition keep a single auto-opened preview.
func (m *Sessions) OpenInSlot(slot, exportID, path string, d time.Duration, opts Options) (*Session, error) {
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	s := newSession(exportID, path, d, opts, m.logger)

	m.mu.Lock()
	prev := m.sessions[m.slots[slot]]
	if prev != nil {
		delete(m.sessions, prev.ID)
		delete(m.slotOf, prev.ID)
	}
	m.sessions[s.ID] = s
	m.slots[slot] = s.ID
	m.slotOf[s.ID] = slot
	m.mu.Unlock()

	if prev != nil {
		prev.close()
		m.logger.Info("preview replaced", "session_id", prev.ID, "slot", slot)
	}
	m.logger.Info("preview opened", "session_id", s.ID, "export_id", exportID, "slot", slot, "loop", opts.Loop, "muted", opts.Muted)
	return s, nil
}

func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Sessions) Restart(id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.Restart()
	return s, nil
}

func (m *Sessions) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	if slot, held := m.slotOf[id]; held {
		delete(m.slotOf, id)
		delete(m.slots, slot)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

func (m *Sessions) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.slots = make(map[string]string)
	m.slotOf = make(map[string]string)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
