// Package stream runs the redaction transform between two Kafka topics.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/dispatch"
	"github.com/kumarabd/redaction-plane/pkg/record"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("redaction-plane/stream")

// Reader is the consuming side, satisfied by *kafka.Reader
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is the producing side, satisfied by *kafka.Writer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Transformer redacts a message in place
type Transformer interface {
	Transform(ctx context.Context, msg *dispatch.Message) error
}

// NewKafkaReader builds a consumer group reader for the input topic
func NewKafkaReader(cfg *Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.brokers(),
		GroupID: cfg.GroupID,
		Topic:   cfg.InputTopic,
	})
}

// NewKafkaWriter builds a producer for topic
func NewKafkaWriter(cfg *Config, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.brokers()...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Processor consumes, redacts and produces one message at a time. A
// message is committed only after its redacted form, or its dead-letter
// copy, has been written. Payload failures are never forwarded unredacted.
type Processor struct {
	config      *Config
	reader      Reader
	writer      Writer
	deadLetter  Writer
	transformer Transformer
	breaker     *Breaker
	log         *logger.Handler
	metric      *metrics.Handler

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewProcessor wires a processor; deadLetter may be nil
func NewProcessor(cfg *Config, reader Reader, writer, deadLetter Writer, t Transformer, log *logger.Handler, metric *metrics.Handler) *Processor {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Processor{
		config:      cfg,
		reader:      reader,
		writer:      writer,
		deadLetter:  deadLetter,
		transformer: t,
		breaker:     NewBreaker(cfg.MaxFailures, cfg.RetryBackoff),
		log:         log,
		metric:      metric,
	}
}

// Start launches the consume loop in the background
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("stream processor is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.isRunning = true

	p.wg.Add(1)
	go p.run(ctx)
	p.log.Info().Str("input_topic", p.config.InputTopic).Str("output_topic", p.config.OutputTopic).Msg("Stream processor started")
	return nil
}

// Stop cancels the loop, waits for the in-flight message and closes the
// reader and writers
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return nil
	}

	p.log.Info().Msg("Stopping stream processor...")
	p.cancel()
	p.wg.Wait()
	p.isRunning = false

	var errs []error
	if err := p.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing reader: %w", err))
	}
	if err := p.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing writer: %w", err))
	}
	if p.deadLetter != nil {
		if err := p.deadLetter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing dead letter writer: %w", err))
		}
	}
	p.log.Info().Msg("Stream processor stopped")
	return errors.Join(errs...)
}

// IsRunning returns true if the consume loop is active
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		km, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("Failed to fetch message")
			p.count("fetch_error")
			if !sleep(ctx, p.config.RetryBackoff) {
				return
			}
			continue
		}

		if err := p.Handle(ctx, km); err != nil {
			// only cancellation ends Handle early; leave the message uncommitted
			return
		}

		if err := p.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Str("topic", km.Topic).Int("partition", km.Partition).Int64("offset", km.Offset).Msg("Failed to commit message")
			p.count("commit_error")
		}
	}
}

// Handle redacts one message and writes it to the output topic, or to the
// dead-letter topic when a payload is malformed. It returns an error only
// when ctx ends before a write succeeds.
func (p *Processor) Handle(ctx context.Context, km kafka.Message) error {
	ctx, span := tracer.Start(ctx, "stream.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.source", km.Topic),
		attribute.Int("messaging.partition", km.Partition),
		attribute.Int64("messaging.offset", km.Offset),
	)

	msg := p.decode(km)
	if err := p.transformer.Transform(ctx, &msg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return p.reject(ctx, km, err)
	}

	out, err := encode(msg, km)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return p.reject(ctx, km, err)
	}

	if err := p.write(ctx, p.writer, out); err != nil {
		return err
	}
	p.count("forwarded")
	return nil
}

func (p *Processor) reject(ctx context.Context, km kafka.Message, cause error) error {
	parts := failedParts(cause)

	if p.deadLetter == nil {
		p.log.Error().Err(cause).
			Str("topic", km.Topic).
			Int("partition", km.Partition).
			Int64("offset", km.Offset).
			Str("part", parts).
			Msg("Dropping message that could not be redacted")
		p.count("dropped")
		return nil
	}

	dl := kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Headers: append(slices.Clone(km.Headers),
			kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
			kafka.Header{Key: HeaderErrorPart, Value: []byte(parts)},
		),
	}
	if err := p.write(ctx, p.deadLetter, dl); err != nil {
		return err
	}
	p.log.Warn().Err(cause).Str("topic", km.Topic).Int64("offset", km.Offset).Str("part", parts).Msg("Message sent to dead letter topic")
	p.count("dead_lettered")
	return nil
}

// write retries until the message is accepted or ctx ends
func (p *Processor) write(ctx context.Context, w Writer, msg kafka.Message) error {
	for {
		if wait := p.breaker.Remaining(); wait > 0 {
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
		}

		err := w.WriteMessages(ctx, msg)
		if err == nil {
			p.breaker.Success()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.breaker.Fail()
		p.count("write_error")
		p.log.Warn().Err(err).Bool("breaker_open", p.breaker.Open()).Msg("Failed to write message, retrying")
		if !sleep(ctx, p.config.RetryBackoff) {
			return ctx.Err()
		}
	}
}

func (p *Processor) decode(km kafka.Message) dispatch.Message {
	keySchema, valueSchema := p.config.KeySchema, p.config.ValueSchema
	for _, h := range km.Headers {
		switch h.Key {
		case HeaderKeySchema:
			keySchema = string(h.Value)
		case HeaderValueSchema:
			valueSchema = string(h.Value)
		}
	}

	msg := dispatch.Message{
		Topic: km.Topic,
		Key:   dispatch.Payload{Schema: keySchema},
		Value: dispatch.Payload{Schema: valueSchema},
	}
	if km.Key != nil {
		msg.Key.Data = km.Key
	}
	if km.Value != nil {
		msg.Value.Data = km.Value
	}
	return msg
}

func encode(msg dispatch.Message, km kafka.Message) (kafka.Message, error) {
	key, err := toBytes(msg.Key.Data)
	if err != nil {
		return kafka.Message{}, &dispatch.PayloadError{Part: dispatch.PartKey, Schema: msg.Key.Schema, Err: err}
	}
	value, err := toBytes(msg.Value.Data)
	if err != nil {
		return kafka.Message{}, &dispatch.PayloadError{Part: dispatch.PartValue, Schema: msg.Value.Schema, Err: err}
	}
	return kafka.Message{
		Key:     key,
		Value:   value,
		Headers: slices.Clone(km.Headers),
		Time:    km.Time,
	}, nil
}

func toBytes(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case record.Node:
		return record.Marshal(v)
	default:
		return json.Marshal(v)
	}
}

func failedParts(err error) string {
	var parts []string
	var perr *dispatch.PayloadError
	if errors.As(err, &perr) {
		parts = append(parts, perr.Part)
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts = parts[:0]
		for _, e := range joined.Unwrap() {
			if errors.As(e, &perr) {
				parts = append(parts, perr.Part)
			}
		}
	}
	return strings.Join(parts, ",")
}

func (p *Processor) count(outcome string) {
	if p.metric != nil {
		p.metric.IncStreamMessages(outcome)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
