package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"wallpaperdb/internal/logging"
)

// tracePropagator carries W3C traceparent headers across the bus: injected
// onto the NATS message on publish, extracted back onto the handler's
// context on consume (spec §4.I).
var tracePropagator = propagation.TraceContext{}

// tracer spans each publish/consume so the traceparent injected onto the
// wire carries a real span, not just a propagated empty context.
var tracer = otel.Tracer("wallpaperdb/eventbus")

// defaultMaxDeliveryAttempts bounds how many deliveries (the first one
// included) a variant-available message gets before a handler failure
// terminates it rather than redelivering it forever (spec §4.I).
const defaultMaxDeliveryAttempts = 3

// Publisher is the outbound half of the event bus contract: publish the
// single wallpaper.uploaded event after an upload reaches `stored` (spec
// §4.B, §4.D).
type Publisher interface {
	PublishUploaded(ctx context.Context, p UploadedPayload) (eventID string, err error)
}

// Consumer is the inbound half: a durable subscription on
// wallpaper.variant.available, acknowledging only after the handler
// succeeds (spec §4.D, §4.F "missing-events reconciler" rationale).
type Consumer interface {
	ConsumeVariantAvailable(ctx context.Context, handle func(context.Context, VariantAvailablePayload) error) error
	Close() error
}

type Config struct {
	URL                 string
	Stream              string
	UploadSubject       string // e.g. "wallpaper.uploaded"
	VariantSubject      string // e.g. "wallpaper.variant.available"
	DurableName         string
	MaxDeliveryAttempts int // deliveries (first included) before a failing message is terminated; 0 uses the default
}

type jetStreamBus struct {
	conn                 *nats.Conn
	js                   nats.JetStreamContext
	cfg                  Config
	logger               *logging.StructuredLogger
	onMaxRetriesExceeded func(context.Context, VariantAvailablePayload, error)
}

// New connects to NATS and ensures the stream exists, so construction fails
// when the bus is unreachable.
func New(cfg Config, logger *logging.StructuredLogger) (*jetStreamBus, error) {
	conn, err := nats.Connect(cfg.URL, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.UploadSubject, cfg.VariantSubject},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}

	if cfg.MaxDeliveryAttempts <= 0 {
		cfg.MaxDeliveryAttempts = defaultMaxDeliveryAttempts
	}

	return &jetStreamBus{conn: conn, js: js, cfg: cfg, logger: logger}, nil
}

// OnMaxRetriesExceeded registers a hook invoked when a variant-available
// message is terminated after exhausting its delivery attempts, so callers
// can surface the drop (e.g. to the missing-events reconciler or an alert)
// instead of it vanishing silently (spec §4.I).
func (b *jetStreamBus) OnMaxRetriesExceeded(fn func(context.Context, VariantAvailablePayload, error)) {
	b.onMaxRetriesExceeded = fn
}

func (b *jetStreamBus) PublishUploaded(ctx context.Context, p UploadedPayload) (string, error) {
	if err := ValidateUploaded(p); err != nil {
		return "", err
	}

	ctx, span := tracer.Start(ctx, "eventbus.publish "+EventWallpaperUploaded, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	env := Envelope{
		EventID:    NewEventID(),
		EventType:  EventWallpaperUploaded,
		OccurredAt: time.Now(),
		Payload:    p,
	}

	data, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := &nats.Msg{Subject: b.cfg.UploadSubject, Data: data, Header: nats.Header{}}
	tracePropagator.Inject(ctx, propagation.HeaderCarrier(msg.Header))

	_, err = b.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish %s: %w", EventWallpaperUploaded, err)
	}

	return env.EventID, nil
}

// ConsumeVariantAvailable binds a durable pull consumer so redelivery
// resumes from the last unacknowledged message across restarts, satisfying
// the "no event is silently dropped" invariant (spec §4.D).
func (b *jetStreamBus) ConsumeVariantAvailable(ctx context.Context, handle func(context.Context, VariantAvailablePayload) error) error {
	sub, err := b.js.PullSubscribe(b.cfg.VariantSubject, b.cfg.DurableName)
	if err != nil {
		return fmt.Errorf("failed to create durable pull subscription: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(10, nats.MaxWait(2*time.Second))
			if err != nil {
				if err != nats.ErrTimeout {
					b.logger.Warn(ctx, "jetstream fetch failed", map[string]interface{}{"error": err.Error()})
				}
				continue
			}

			for _, msg := range msgs {
				b.handleVariantAvailable(ctx, msg, handle)
			}
		}
	}()

	return nil
}

// handleVariantAvailable decodes, validates, and dispatches a single
// variant-available message, applying the delivery-attempt termination
// policy (spec §4.I) around the caller's handler.
func (b *jetStreamBus) handleVariantAvailable(ctx context.Context, msg *nats.Msg, handle func(context.Context, VariantAvailablePayload) error) {
	var env Envelope
	var payload VariantAvailablePayload

	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.logger.Error(ctx, "failed to unmarshal envelope, terminating redelivery", map[string]interface{}{"error": err.Error()})
		_ = msg.Term()
		return
	}

	raw, _ := json.Marshal(env.Payload)
	if err := json.Unmarshal(raw, &payload); err != nil {
		b.logger.Error(ctx, "failed to unmarshal variant-available payload, terminating redelivery", map[string]interface{}{"error": err.Error()})
		_ = msg.Term()
		return
	}

	if err := ValidateVariantAvailable(payload); err != nil {
		b.logger.Error(ctx, "variant-available payload failed schema validation", map[string]interface{}{"error": err.Error()})
		_ = msg.Term()
		return
	}

	msgCtx := tracePropagator.Extract(ctx, propagation.HeaderCarrier(msg.Header))
	msgCtx, span := tracer.Start(msgCtx, "eventbus.consume "+EventWallpaperVariantReady, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var numDelivered uint64 = 1
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		numDelivered = meta.NumDelivered
	}

	if err := handle(msgCtx, payload); err != nil {
		span.RecordError(err)
		if numDelivered >= uint64(b.cfg.MaxDeliveryAttempts) {
			b.logger.Error(msgCtx, "variant-available handler failed on final delivery attempt, terminating", map[string]interface{}{
				"error":      err.Error(),
				"deliveries": numDelivered,
			})
			_ = msg.Term()
			if b.onMaxRetriesExceeded != nil {
				b.onMaxRetriesExceeded(msgCtx, payload, err)
			}
			return
		}
		b.logger.Warn(msgCtx, "variant-available handler failed, nak for redelivery", map[string]interface{}{"error": err.Error()})
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}

func (b *jetStreamBus) Close() error {
	b.conn.Close()
	return nil
}

// Conn exposes the underlying connection for the monitoring service's
// EventBusHealthChecker.
func (b *jetStreamBus) Conn() *nats.Conn {
	return b.conn
}
