package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// LogSink writes transitions to a logger. Returns are logged as warnings.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, t Transition) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"session", t.Session,
		"leave_count", t.State.LeaveCount,
		"total_time_away", t.State.TotalTimeAway,
	}
	if t.Kind == KindReturn {
		log.WarnContext(ctx, t.Warning, append(attrs, "elapsed", t.Elapsed)...)
		return nil
	}
	log.InfoContext(ctx, "contestant left the page", attrs...)
	return nil
}

// DefaultSubject is the NATS subject prefix for activity transitions.
const DefaultSubject = "arena.activity"

// NATSSink publishes transitions as JSON to Subject.<session>.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{nc: nc, subject: subject}
}

func (s *NATSSink) Emit(ctx context.Context, t Transition) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	if err := s.nc.Publish(s.subject+"."+t.Session, b); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, t Transition) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
