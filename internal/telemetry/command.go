package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/mqtt"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// Subscriber is the subset of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Starter launches an operation asynchronously.
type Starter interface {
	Start(ctx context.Context, slug string) (<-chan error, error)
}

// CommandListener starts operations requested on the station's command
// topics.
type CommandListener struct {
	sub     Subscriber
	starter Starter
	station string
	topics  mqtt.Topics
	logger  Logger
}

// NewCommandListener creates a listener for station.
func NewCommandListener(sub Subscriber, starter Starter, station string, logger Logger) *CommandListener {
	return &CommandListener{sub: sub, starter: starter, station: station, logger: orNoop(logger)}
}

// Listen subscribes to the command topics. Operations started from a
// message run under ctx.
func (l *CommandListener) Listen(ctx context.Context) error {
	topic := l.topics.AllCommands(l.station)
	if err := l.sub.Subscribe(topic, 1, func(t string, _ []byte) error {
		return l.handle(ctx, t)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	l.logger.Info("listening for commands", "topic", topic)
	return nil
}

func (l *CommandListener) handle(ctx context.Context, topic string) error {
	slug, ok := l.topics.CommandOperation(l.station, topic)
	if !ok {
		return fmt.Errorf("%w: %s", sequencer.ErrUnknownOperation, topic)
	}

	done, err := l.starter.Start(ctx, slug)
	switch {
	case errors.Is(err, sequencer.ErrBusy):
		l.logger.Warn("command rejected, operation in progress", "operation", slug)
		return err
	case err != nil:
		return err
	}

	l.logger.Info("operation started from mqtt", "operation", slug)
	go func() {
		if err := <-done; err != nil {
			l.logger.Error("operation failed", "operation", slug, "error", err)
			return
		}
		l.logger.Info("operation finished", "operation", slug)
	}()
	return nil
}
