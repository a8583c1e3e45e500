package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// Logger is the logging interface used by the session manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns the current operator session and buffers verdicts until
// they are flushed to the repository.
//
// Manager is a sequencer.Observer. Its callbacks only touch memory, so
// they never block the sequencer on the database.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	sequencer.NopObserver

	repo      Repository
	stationID string
	now       func() time.Time
	logger    Logger

	mu      sync.Mutex
	info    Info
	saved   bool
	runID   string
	passed  int
	failed  int
	pending []Result
}

var _ sequencer.Observer = (*Manager)(nil)

// NewManager creates a session manager for the station. A session with
// no operator starts immediately so verdicts are never orphaned.
func NewManager(repo Repository, stationID string) *Manager {
	m := &Manager{
		repo:      repo,
		stationID: stationID,
		now:       time.Now,
		logger:    noopLogger{},
	}
	m.info = m.newInfo("", "", "")
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *Manager) newInfo(operator, batch, batchInfo string) Info {
	return Info{
		ID:        uuid.NewString(),
		StationID: m.stationID,
		Operator:  operator,
		Batch:     batch,
		BatchInfo: batchInfo,
		StartedAt: m.now().UTC(),
	}
}

// Start begins a new session for operator and batch. Buffered verdicts of
// the previous session are flushed first.
func (m *Manager) Start(ctx context.Context, operator, batch, batchInfo string) (Info, error) {
	info := m.newInfo(operator, batch, batchInfo)
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	if err := m.Flush(ctx); err != nil {
		return Info{}, fmt.Errorf("flushing previous session: %w", err)
	}
	if err := m.repo.SaveSession(ctx, info); err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	m.info = info
	m.saved = true
	m.passed, m.failed = 0, 0
	logger := m.logger
	m.mu.Unlock()

	logger.Info("session started", "session_id", info.ID, "operator", operator, "batch", batch)
	return info, nil
}

// Info returns the current session.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Stats returns the pass and failure counts of the current session.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Session: m.info,
		Passed:  m.passed,
		Failed:  m.failed,
		Pending: len(m.pending),
	}
}

// RunStarted implements sequencer.Observer.
func (m *Manager) RunStarted(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
}

// SlotCompleted implements sequencer.Observer.
func (m *Manager) SlotCompleted(rec dut.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.State == dut.StateProgrammedOK {
		m.passed++
	} else {
		m.failed++
	}
	m.pending = append(m.pending, resultFromRecord(m.info.ID, m.runID, rec, m.now().UTC()))
}

// Flush writes buffered verdicts to the repository. On failure the
// verdicts stay buffered for the next attempt.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	info, saved := m.info, m.saved
	logger := m.logger
	m.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	err := m.write(ctx, info, saved, pending)
	if err != nil {
		m.mu.Lock()
		m.pending = append(pending, m.pending...)
		m.mu.Unlock()
		logger.Error("persisting verdicts failed", "count", len(pending), "error", err)
		return err
	}

	logger.Debug("verdicts persisted", "count", len(pending), "session_id", info.ID)
	return nil
}

func (m *Manager) write(ctx context.Context, info Info, saved bool, results []Result) error {
	if !saved {
		if err := m.repo.SaveSession(ctx, info); err != nil {
			return err
		}
		m.mu.Lock()
		if m.info.ID == info.ID {
			m.saved = true
		}
		m.mu.Unlock()
	}
	return m.repo.SaveResults(ctx, results)
}

// ListResults returns the most recent persisted verdicts.
func (m *Manager) ListResults(ctx context.Context, limit int) ([]Result, error) {
	return m.repo.ListResults(ctx, limit)
}
