package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/reportengine/metrics"
)

// Observer receives every dispatched signal. An observer error is logged
// and does not stop dispatch.
type Observer interface {
	Observe(ctx context.Context, s Signal) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s Signal) error

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, s Signal) error {
	return f(ctx, s)
}

// LogObserver writes signals to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a log observer.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe logs the signal.
func (o *LogObserver) Observe(_ context.Context, s Signal) error {
	attrs := []any{"code", s.Code, "meaning", s.Code.Meaning()}
	if s.Section != "" {
		attrs = append(attrs, "section", s.Section)
	}
	if s.Actor != "" {
		attrs = append(attrs, "actor", s.Actor)
	}
	if s.Note != "" {
		attrs = append(attrs, "note", s.Note)
	}
	if s.Payload != nil {
		attrs = append(attrs, "version", s.Payload.Version, "qa_flags", s.Payload.QAFlags)
	}
	o.logger.Info("Gateway signal", attrs...)
	return nil
}

// MetricsObserver counts signals by code.
type MetricsObserver struct {
	metrics *metrics.Metrics
}

// NewMetricsObserver creates a metrics observer.
func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

// Observe counts the signal.
func (o *MetricsObserver) Observe(_ context.Context, s Signal) error {
	o.metrics.Signal(string(s.Code))
	return nil
}

// Publisher is the part of a NATS connection the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSObserver mirrors signals to NATS as JSON on
// <prefix>.<code>.<section>.
type NATSObserver struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSObserver creates a NATS mirror over pub.
func NewNATSObserver(pub Publisher, prefix string, logger *slog.Logger) *NATSObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSObserver{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// ConnectNATS dials url for a NATS mirror.
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("reportengine"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// Subject returns the subject a signal is published on.
func (o *NATSObserver) Subject(s Signal) string {
	sec := "case"
	if s.Section != "" {
		sec = strings.ToLower(string(s.Section))
	}
	return fmt.Sprintf("%s.%s.%s", o.prefix, s.Code, sec)
}

// Observe publishes the signal, retrying transient failures.
func (o *NATSObserver) Observe(ctx context.Context, s Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	subject := o.Subject(s)

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		if err := ctx.Err(); err != nil {
			return retry.NonRetryable(err)
		}
		if err := o.pub.Publish(subject, data); err != nil {
			o.logger.Warn("Signal publish failed", "subject", subject, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
