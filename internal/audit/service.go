package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const defaultInboxSize = 1024

// Service accepts audit events on the hot path and hands them to the
// background worker through a bounded inbox. Enqueueing never blocks a
// scan; when the inbox is full the event is dropped and counted.
type Service struct {
	inbox  chan Event
	logger *slog.Logger
	now    func() time.Time

	dropped func()
}

type ServiceOption func(*Service)

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithInboxSize(size int) ServiceOption {
	return func(s *Service) { s.inbox = make(chan Event, size) }
}

// WithDropCounter registers a callback invoked for every dropped event,
// typically a prometheus counter increment.
func WithDropCounter(dropped func()) ServiceOption {
	return func(s *Service) { s.dropped = dropped }
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		inbox:  make(chan Event, defaultInboxSize),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit fills in event defaults and enqueues it for persistence.
func (s *Service) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	select {
	case s.inbox <- event:
	default:
		if s.dropped != nil {
			s.dropped()
		}
		s.logger.WarnContext(ctx, "audit inbox full, event dropped",
			"action", event.Action,
		)
	}
}

// Inbox is consumed by the worker.
func (s *Service) Inbox() <-chan Event { return s.inbox }
