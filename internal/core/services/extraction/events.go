package extraction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/validation"
)

// Outcome is what happened to one source record.
type Outcome string

const (
	OutcomeAccepted            Outcome = "accepted"
	OutcomeCorrected           Outcome = "corrected"
	OutcomeRejectedInvalid     Outcome = "rejected_invalid"
	OutcomeRejectedIdentity    Outcome = "rejected_identity"
	OutcomeRejectedPersistence Outcome = "rejected_persistence"
	OutcomeDuplicate           Outcome = "duplicate"
)

// Inserted reports whether the record ended up in the catalog.
func (o Outcome) Inserted() bool {
	return o == OutcomeAccepted || o == OutcomeCorrected
}

// Event reports the decision taken for one record.
type Event struct {
	RunID    string               `json:"run_id"`
	Source   string               `json:"source"`
	Index    int                  `json:"index"`
	Name     string               `json:"name"`
	Outcome  Outcome              `json:"outcome"`
	Message  string               `json:"message,omitempty"`
	Errors   []validation.Verdict `json:"errors,omitempty"`
	Warnings []validation.Verdict `json:"warnings,omitempty"`
}

// Sink receives every record decision as it is taken.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the event. Rejections are warnings.
func (s *LogSink) Record(ctx context.Context, e Event) {
	attrs := []slog.Attr{
		slog.String("run_id", e.RunID),
		slog.String("source", e.Source),
		slog.Int("index", e.Index),
		slog.String("name", e.Name),
		slog.String("outcome", string(e.Outcome)),
	}
	if e.Message != "" {
		attrs = append(attrs, slog.String("message", e.Message))
	}
	if len(e.Warnings) > 0 {
		attrs = append(attrs, slog.Any("warnings", e.Warnings))
	}
	if len(e.Errors) > 0 {
		attrs = append(attrs, slog.Any("errors", e.Errors))
	}

	level := slog.LevelInfo
	switch e.Outcome {
	case OutcomeRejectedInvalid, OutcomeRejectedIdentity, OutcomeRejectedPersistence:
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "station record processed", attrs...)
}

// Collector keeps events in memory. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Record stores the event.
func (c *Collector) Record(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Record forwards e to every non-nil sink.
func (m MultiSink) Record(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, e)
		}
	}
}
