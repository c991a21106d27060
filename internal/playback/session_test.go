package playback

import (
	"errors"
	"testing"
	"time"
)

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestSession_EndsWithoutLoop(t *testing.T) {
	m := NewSessions(testLogger())
	s, err := m.Open("exp-1", "/tmp/out.mov", 20*time.Millisecond, Options{Muted: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer m.CloseAll()

	if st := s.Status(); !st.Playing || !st.Muted || st.Loop {
		t.Errorf("initial status = %+v", st)
	}

	waitClosed(t, s.Ended())

	st := s.Status()
	if st.Playing || st.Plays != 1 {
		t.Errorf("status after end = %+v, want stopped after 1 play", st)
	}
	if st.PositionS != st.DurationS {
		t.Errorf("position = %v, want end %v", st.PositionS, st.DurationS)
	}
}

func TestSession_Loops(t *testing.T) {
	m := NewSessions(testLogger())
	s, err := m.Open("exp-1", "/tmp/out.mov", 15*time.Millisecond, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	waitClosed(t, s.Ended())
	waitClosed(t, s.Ended())

	st := s.Status()
	if !st.Playing {
		t.Error("looping preview stopped playing")
	}
	if st.Plays < 2 {
		t.Errorf("plays = %d, want at least 2", st.Plays)
	}
}

func TestSession_RestartAfterEnd(t *testing.T) {
	m := NewSessions(testLogger())
	s, err := m.Open("exp-1", "/tmp/out.mov", 10*time.Millisecond, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	waitClosed(t, s.Ended())

	if _, err := m.Restart(s.ID); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if !s.Status().Playing {
		t.Error("restarted preview not playing")
	}
	waitClosed(t, s.Ended())
	if got := s.Status().Plays; got != 2 {
		t.Errorf("plays = %d, want 2", got)
	}
}

func TestSession_RestartWhilePlayingKeepsWaiters(t *testing.T) {
	m := NewSessions(testLogger())
	s, err := m.Open("exp-1", "/tmp/out.mov", 50*time.Millisecond, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	ended := s.Ended()
	time.Sleep(20 * time.Millisecond)
	s.Restart()

	waitClosed(t, ended)
	if got := s.Status().Plays; got != 1 {
		t.Errorf("plays = %d, want 1 (restart should not count as a play)", got)
	}
}

func TestSessions_Errors(t *testing.T) {
	m := NewSessions(nil)

	if _, err := m.Open("exp-1", "/tmp/out.mov", 0, DefaultOptions()); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Open(0) error = %v, want ErrInvalidDuration", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if _, err := m.Restart("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Restart(missing) error = %v", err)
	}

	s, _ := m.Open("exp-1", "/tmp/out.mov", time.Hour, DefaultOptions())
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close() error = %v", err)
	}
	if s.Status().Playing {
		t.Error("closed session still playing")
	}
}

func TestSessions_OpenInSlotReplacesPrevious(t *testing.T) {
	m := NewSessions(testLogger())
	defer m.CloseAll()

	first, err := m.OpenInSlot("comp-1", "exp-1", "/tmp/one.mov", 15*time.Millisecond, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenInSlot() error = %v", err)
	}
	second, err := m.OpenInSlot("comp-1", "exp-2", "/tmp/two.mov", time.Hour, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenInSlot() error = %v", err)
	}
	other, err := m.OpenInSlot("comp-2", "exp-3", "/tmp/three.mov", time.Hour, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenInSlot() error = %v", err)
	}

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if _, err := m.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(replaced) error = %v, want ErrSessionNotFound", err)
	}

	// A replaced looping session stops re-arming its timer.
	plays := first.Status().Plays
	time.Sleep(50 * time.Millisecond)
	if st := first.Status(); st.Playing || st.Plays != plays {
		t.Errorf("replaced session status = %+v, want stopped at %d plays", st, plays)
	}

	if err := m.Close(second.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	again, err := m.OpenInSlot("comp-1", "exp-4", "/tmp/four.mov", time.Hour, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenInSlot() after Close error = %v", err)
	}
	if _, err := m.Get(other.ID); err != nil {
		t.Errorf("session in another slot was closed: %v", err)
	}
	if _, err := m.Get(again.ID); err != nil || m.Len() != 2 {
		t.Errorf("Get(reopened) error = %v, Len() = %d", err, m.Len())
	}
}
