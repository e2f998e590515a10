// Package dispatch routes each part of a message to the redaction routine
// its type tag calls for.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/record"
	"github.com/kumarabd/redaction-plane/pkg/redact"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("redaction-plane/dispatch")

// ErrMalformedPayload is wrapped when a structured payload cannot be parsed
var ErrMalformedPayload = errors.New("malformed structured payload")

const (
	PartKey   = "key"
	PartValue = "value"
)

// Kind classifies a payload by its type tag
type Kind int

const (
	KindRaw Kind = iota
	KindStructured
	KindPlainText
	KindUnsupported
)

// String returns the label used in metrics and logs
func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindStructured:
		return "structured"
	case KindPlainText:
		return "plain_text"
	default:
		return "unsupported"
	}
}

// Payload is one part of a message with its type tag. Schema names follow
// the Connect schema types: JSON, STRUCT and MAP are structured, STRING and
// TEXT are plain text.
type Payload struct {
	Schema string      `json:"schema,omitempty"`
	Data   interface{} `json:"data"`
}

// Message is one inbound unit from the host
type Message struct {
	Topic string
	Key   Payload
	Value Payload
}

// PayloadError attributes a failure to the key or the value
type PayloadError struct {
	Part   string
	Schema string
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s payload (schema %q): %v", e.Part, e.Schema, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Redactor is the orchestrator the dispatcher delegates to
type Redactor interface {
	RedactRecord(ctx context.Context, root record.Node) (record.Node, redact.Report)
	RedactText(ctx context.Context, text, language string) (string, redact.Report)
}

// Dispatcher routes message parts to the redactor by type tag
type Dispatcher struct {
	redactor Redactor
	log      *logger.Handler
	metric   *metrics.Handler
}

// New creates a new dispatcher; log and metric may be nil
func New(r Redactor, log *logger.Handler, metric *metrics.Handler) *Dispatcher {
	return &Dispatcher{
		redactor: r,
		log:      log,
		metric:   metric,
	}
}

// KindOf maps a payload's type tag to a Kind. Tags are case-insensitive.
func KindOf(p Payload) Kind {
	if p.Data == nil {
		return KindRaw
	}
	switch strings.ToUpper(strings.TrimSpace(p.Schema)) {
	case "JSON", "STRUCT", "MAP":
		return KindStructured
	case "STRING", "TEXT":
		return KindPlainText
	default:
		return KindUnsupported
	}
}

// Dispatch redacts a single payload according to its kind. Raw and
// unsupported payloads are returned unchanged. An error means the payload
// was malformed; the input is returned unchanged with it.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (Payload, error) {
	return d.dispatch(ctx, "payload", p)
}

// Transform redacts the key and the value of msg independently and writes
// each successful result back. Failures are returned as *PayloadError,
// joined when both parts fail.
func (d *Dispatcher) Transform(ctx context.Context, msg *Message) error {
	ctx, span := tracer.Start(ctx, "dispatch.transform")
	defer span.End()
	span.SetAttributes(attribute.String("message.topic", msg.Topic))

	var errs []error

	key, err := d.dispatch(ctx, PartKey, msg.Key)
	if err != nil {
		errs = append(errs, &PayloadError{Part: PartKey, Schema: msg.Key.Schema, Err: err})
	} else {
		msg.Key = key
	}

	value, err := d.dispatch(ctx, PartValue, msg.Value)
	if err != nil {
		errs = append(errs, &PayloadError{Part: PartValue, Schema: msg.Value.Schema, Err: err})
	} else {
		msg.Value = value
	}

	if len(errs) == 1 {
		span.SetStatus(codes.Error, errs[0].Error())
		return errs[0]
	}
	if len(errs) > 1 {
		joined := errors.Join(errs...)
		span.SetStatus(codes.Error, joined.Error())
		return joined
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, part string, p Payload) (Payload, error) {
	kind := KindOf(p)

	switch kind {
	case KindStructured:
		data, report, err := d.redactStructured(ctx, p.Data)
		if err != nil {
			d.count(part, kind, "failed")
			return p, err
		}
		d.count(part, kind, outcomeOf(report))
		return Payload{Schema: p.Schema, Data: data}, nil

	case KindPlainText:
		data, report, ok := d.redactPlainText(ctx, p.Data)
		if !ok {
			if d.log != nil {
				d.log.Debug().Str("part", part).Str("schema", p.Schema).Msgf("non-text data of type %T under a text schema, passing through", p.Data)
			}
			d.count(part, kind, "passed")
			return p, nil
		}
		d.count(part, kind, outcomeOf(report))
		return Payload{Schema: p.Schema, Data: data}, nil

	default:
		if d.log != nil && kind == KindUnsupported {
			d.log.Debug().Str("part", part).Str("schema", p.Schema).Msg("unsupported schema, passing through")
		}
		d.count(part, kind, "passed")
		return p, nil
	}
}

func (d *Dispatcher) redactStructured(ctx context.Context, data interface{}) (interface{}, redact.Report, error) {
	switch v := data.(type) {
	case record.Node:
		root, report := d.redactor.RedactRecord(ctx, v)
		return root, report, nil

	case string:
		out, report, err := d.redactDocument(ctx, []byte(v))
		if err != nil {
			return nil, report, err
		}
		return string(out), report, nil

	case []byte:
		out, report, err := d.redactDocument(ctx, v)
		if err != nil {
			return nil, report, err
		}
		return out, report, nil

	default:
		root, err := record.FromValue(v)
		if err != nil {
			return nil, redact.Report{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		root, report := d.redactor.RedactRecord(ctx, root)
		return record.ToValue(root), report, nil
	}
}

func (d *Dispatcher) redactDocument(ctx context.Context, doc []byte) ([]byte, redact.Report, error) {
	root, err := record.Parse(doc)
	if err != nil {
		return nil, redact.Report{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	root, report := d.redactor.RedactRecord(ctx, root)
	out, err := record.Marshal(root)
	if err != nil {
		return nil, report, err
	}
	return out, report, nil
}

func (d *Dispatcher) redactPlainText(ctx context.Context, data interface{}) (interface{}, redact.Report, bool) {
	switch v := data.(type) {
	case string:
		out, report := d.redactor.RedactText(ctx, v, "")
		return out, report, true
	case []byte:
		out, report := d.redactor.RedactText(ctx, string(v), "")
		return []byte(out), report, true
	case record.Text:
		out, report := d.redactor.RedactText(ctx, string(v), "")
		return record.Text(out), report, true
	default:
		return nil, redact.Report{}, false
	}
}

func (d *Dispatcher) count(part string, kind Kind, outcome string) {
	if d.metric != nil {
		d.metric.IncPayloadsTotal(part, kind.String(), outcome)
	}
}

func outcomeOf(report redact.Report) string {
	if report.Applied {
		return "redacted"
	}
	return "clean"
}
