package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/analyzer"
	"github.com/kumarabd/redaction-plane/pkg/language"
	"github.com/kumarabd/redaction-plane/pkg/record"
	"github.com/kumarabd/redaction-plane/pkg/redact"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*Dispatcher, *metrics.Handler) {
	t.Helper()
	a, err := analyzer.New(analyzer.WithDenyList("PERSON", []string{"Bob D", "John", "Christine Tran"}))
	require.NoError(t, err)
	policy, err := language.NewPolicy([]string{"en"})
	require.NoError(t, err)
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)
	m, err := metrics.New("test")
	require.NoError(t, err)
	return New(redact.New(a, policy), log, m), m
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		payload Payload
		want    Kind
	}{
		{Payload{Schema: "JSON", Data: nil}, KindRaw},
		{Payload{Schema: "", Data: nil}, KindRaw},
		{Payload{Schema: "JSON", Data: "{}"}, KindStructured},
		{Payload{Schema: "struct", Data: map[string]interface{}{}}, KindStructured},
		{Payload{Schema: "MAP", Data: "{}"}, KindStructured},
		{Payload{Schema: "STRING", Data: "x"}, KindPlainText},
		{Payload{Schema: " text ", Data: "x"}, KindPlainText},
		{Payload{Schema: "INT32", Data: 0}, KindUnsupported},
		{Payload{Schema: "INT64", Data: 990}, KindUnsupported},
		{Payload{Schema: "BYTES", Data: []byte("x")}, KindUnsupported},
		{Payload{Schema: "", Data: "x"}, KindUnsupported},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, KindOf(tc.payload), "%s %v", tc.payload.Schema, tc.payload.Data)
	}
}

func TestDispatchStructuredString(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), Payload{Schema: "JSON", Data: `{"first_name":"Bob D","note":"hello"}`})
	require.NoError(t, err)
	assert.Equal(t, `{"first_name":"<PERSON>","note":"hello"}`, out.Data)
	assert.Equal(t, "JSON", out.Schema)
}

func TestDispatchStructuredBytes(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), Payload{Schema: "JSON", Data: []byte(`{"first_name":"Bob D"}`)})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"first_name":"<PERSON>"}`), out.Data)
}

func TestDispatchStructuredValue(t *testing.T) {
	d, _ := newDispatcher(t)

	in := map[string]interface{}{
		"user": map[string]interface{}{"first_name": "John", "age": 25},
		"ok":   true,
	}
	out, err := d.Dispatch(context.Background(), Payload{Schema: "STRUCT", Data: in})
	require.NoError(t, err)

	m, ok := out.Data.(map[string]interface{})
	require.True(t, ok)
	user := m["user"].(map[string]interface{})
	assert.Equal(t, "<PERSON>", user["first_name"])
	assert.Equal(t, json.Number("25"), user["age"])
	assert.Equal(t, true, m["ok"])
}

func TestDispatchStructuredNodeInPlace(t *testing.T) {
	d, _ := newDispatcher(t)

	root := record.Mapping{"name": record.Text("Bob D")}
	out, err := d.Dispatch(context.Background(), Payload{Schema: "JSON", Data: root})
	require.NoError(t, err)
	assert.Equal(t, record.Text("<PERSON>"), root["name"])
	assert.Equal(t, root, out.Data)
}

func TestDispatchPlainText(t *testing.T) {
	d, m := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), Payload{Schema: "STRING", Data: "my name is Bob D"})
	require.NoError(t, err)
	assert.Equal(t, "my name is <PERSON>", out.Data)

	out, err = d.Dispatch(context.Background(), Payload{Schema: "STRING", Data: []byte("my name is Bob D")})
	require.NoError(t, err)
	assert.Equal(t, []byte("my name is <PERSON>"), out.Data)

	out, err = d.Dispatch(context.Background(), Payload{Schema: "STRING", Data: "Value 0"})
	require.NoError(t, err)
	assert.Equal(t, "Value 0", out.Data)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PayloadsTotal.WithLabelValues("payload", "plain_text", "redacted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsTotal.WithLabelValues("payload", "plain_text", "clean")))
}

func TestDispatchPlainTextNonTextPassesThrough(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), Payload{Schema: "STRING", Data: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Data)
}

func TestDispatchUnsupportedAndRaw(t *testing.T) {
	d, m := newDispatcher(t)

	for _, p := range []Payload{
		{Schema: "INT32", Data: 0},
		{Schema: "BYTES", Data: "Bob D"},
		{Schema: "FLOAT64", Data: 1.5},
		{Schema: "JSON", Data: nil},
	} {
		out, err := d.Dispatch(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, p, out)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PayloadsTotal.WithLabelValues("payload", "unsupported", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsTotal.WithLabelValues("payload", "raw", "passed")))
}

func TestDispatchMalformed(t *testing.T) {
	d, _ := newDispatcher(t)

	in := Payload{Schema: "JSON", Data: `{"first_name":`}
	out, err := d.Dispatch(context.Background(), in)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, in, out)

	_, err = d.Dispatch(context.Background(), Payload{Schema: "JSON", Data: struct{}{}})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTransformRecords(t *testing.T) {
	d, _ := newDispatcher(t)

	msg := &Message{
		Topic: "test-topic",
		Key:   Payload{Schema: "INT32", Data: 0},
		Value: Payload{Schema: "JSON", Data: `{"user":{"first_name":"John","last_name":"Doe","age":25},"balance":123.45,"is_premium":true}`},
	}
	require.NoError(t, d.Transform(context.Background(), msg))
	assert.Equal(t, 0, msg.Key.Data)
	assert.JSONEq(t, `{"user":{"first_name":"<PERSON>","last_name":"Doe","age":25},"balance":123.45,"is_premium":true}`, msg.Value.Data.(string))

	msg = &Message{
		Topic: "plates-full-text-anonymized",
		Key:   Payload{Schema: "INT64", Data: 990},
		Value: Payload{Schema: "STRING", Data: "On traditional measure. Christine Tran 80160 Clayton Isle"},
	}
	require.NoError(t, d.Transform(context.Background(), msg))
	assert.Equal(t, "On traditional measure. <PERSON> 80160 Clayton Isle", msg.Value.Data)
}

func TestTransformAttributesFailures(t *testing.T) {
	d, _ := newDispatcher(t)

	msg := &Message{
		Key:   Payload{Schema: "STRING", Data: "Bob D"},
		Value: Payload{Schema: "JSON", Data: "not json"},
	}
	err := d.Transform(context.Background(), msg)
	require.Error(t, err)

	var perr *PayloadError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, PartValue, perr.Part)
	assert.Equal(t, "JSON", perr.Schema)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, "<PERSON>", msg.Key.Data, "the key is still redacted")
	assert.Equal(t, "not json", msg.Value.Data)

	both := &Message{
		Key:   Payload{Schema: "JSON", Data: "{"},
		Value: Payload{Schema: "MAP", Data: "["},
	}
	err = d.Transform(context.Background(), both)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key payload")
	assert.Contains(t, err.Error(), "value payload")
}

func TestTransformConcurrently(t *testing.T) {
	d, m := newDispatcher(t)

	const workers, iterations = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				msg := &Message{
					Topic: "test-topic",
					Key:   Payload{Schema: "STRING", Data: "John"},
					Value: Payload{Schema: "JSON", Data: `{"first_name":"Bob D","age":25}`},
				}
				if !assert.NoError(t, d.Transform(context.Background(), msg)) {
					return
				}
				assert.Equal(t, "<PERSON>", msg.Key.Data)
				assert.JSONEq(t, `{"first_name":"<PERSON>","age":25}`, msg.Value.Data.(string))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(workers*iterations), testutil.ToFloat64(m.PayloadsTotal.WithLabelValues(PartKey, "plain_text", "redacted")))
	assert.Equal(t, float64(workers*iterations), testutil.ToFloat64(m.PayloadsTotal.WithLabelValues(PartValue, "structured", "redacted")))
}
