package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCreatesEmptySession(t *testing.T) {
	m := NewMemoryStore()
	s := m.Snapshot("s1")

	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, StepAnalyze, s.Step)
	assert.False(t, s.HasSummary())
	assert.False(t, s.HasDocument())
	assert.Equal(t, 1, m.Len())
}

func TestWithKeepsChangesOnlyOnSuccess(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.With("s1", func(s *Session) error {
		s.AuditSummary = "first"
		return nil
	}))

	boom := errors.New("boom")
	err := m.With("s1", func(s *Session) error {
		s.AuditSummary = "clobbered"
		s.SecondaryResult = "clobbered"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got := m.Snapshot("s1")
	assert.Equal(t, "first", got.AuditSummary)
	assert.Empty(t, got.SecondaryResult)
}

func TestWithCannotChangeID(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.With("s1", func(s *Session) error {
		s.ID = "s2"
		return nil
	}))
	assert.Equal(t, "s1", m.Snapshot("s1").ID)
	assert.Equal(t, 1, m.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.With("alice", func(s *Session) error {
		s.AuditSummary = "alice summary"
		return nil
	}))
	require.NoError(t, m.With("bob", func(s *Session) error {
		s.AuditSummary = "bob summary"
		return nil
	}))

	assert.Equal(t, "alice summary", m.Snapshot("alice").AuditSummary)
	assert.Equal(t, "bob summary", m.Snapshot("bob").AuditSummary)
}

func TestSlowSessionDoesNotBlockOthers(t *testing.T) {
	m := NewMemoryStore()
	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.With("slow", func(s *Session) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = m.With("fast", func(s *Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast session blocked behind slow session")
	}
	close(release)
	wg.Wait()
}

func TestConcurrentWritesSameSessionAreSerialised(t *testing.T) {
	m := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With("s", func(s *Session) error {
				s.SecondaryResult += "x"
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, m.Snapshot("s").SecondaryResult, 50)
}

func TestSweep(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Snapshot("old")
	now = now.Add(20 * time.Minute)
	m.Snapshot("fresh")
	now = now.Add(15 * time.Minute)

	removed := m.Sweep(30 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())

	m.Delete("fresh")
	assert.Equal(t, 0, m.Len())
}
