// Package station ties the sequencer to the operator session so that
// every operation, however it is started, ends with its verdicts
// persisted.
package station

import (
	"context"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// flushTimeout bounds the database write after an operation.
const flushTimeout = 10 * time.Second

// Flusher persists buffered verdicts.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Logger is the logging interface used by the station.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Station runs operations on the sequencer and flushes the session after
// each one.
type Station struct {
	seq     *sequencer.Sequencer
	session Flusher
	logger  Logger
}

// New creates a Station. session may be nil when verdicts are not
// persisted.
func New(seq *sequencer.Sequencer, session Flusher, logger Logger) *Station {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Station{seq: seq, session: session, logger: logger}
}

// Operations returns the operator menu in order.
func (s *Station) Operations() []sequencer.Operation {
	return s.seq.Operations()
}

// Active returns the slug of the running operation, or "".
func (s *Station) Active() string {
	return s.seq.Active()
}

// Slots returns a snapshot of every slot record.
func (s *Station) Slots() []dut.Record {
	return s.seq.Registry().Snapshot()
}

// RunID returns the current run id.
func (s *Station) RunID() string {
	return s.seq.RunID()
}

// Run executes the operation named slug and waits for it.
func (s *Station) Run(ctx context.Context, slug string) error {
	err := s.seq.Run(ctx, slug)
	s.finish(ctx, slug, err)
	return err
}

// Start launches the operation named slug in the background. The returned
// channel yields its result after the session has been flushed.
func (s *Station) Start(ctx context.Context, slug string) (<-chan error, error) {
	done, err := s.seq.Start(ctx, slug)
	if err != nil {
		return nil, err
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		err := <-done
		s.finish(ctx, slug, err)
		out <- err
	}()
	return out, nil
}

func (s *Station) finish(ctx context.Context, slug string, err error) {
	if err != nil {
		s.logger.Error("operation failed", "operation", slug, "error", err)
	}

	if s.session == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if ferr := s.session.Flush(flushCtx); ferr != nil {
		s.logger.Error("persisting verdicts failed", "operation", slug, "error", ferr)
	}
}
