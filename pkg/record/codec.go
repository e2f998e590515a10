package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrUnsupportedValue is returned by FromValue for Go values with no tree form
	ErrUnsupportedValue = errors.New("unsupported value type")
	// ErrTrailingData is returned by Parse when the payload holds more than one JSON document
	ErrTrailingData = errors.New("trailing data after JSON document")
)

// Parse decodes a JSON document into a record tree. Numbers keep their
// literal form.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return FromValue(v)
}

// Marshal encodes a record tree as JSON. Placeholders such as <PERSON> are
// written as-is rather than HTML-escaped.
func Marshal(n Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ToValue(n)); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FromValue converts the generic Go representation produced by
// encoding/json (maps, slices, strings, numbers, bools, nil) into a tree.
// Byte slices become Binary leaves.
func FromValue(v interface{}) (Node, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Node:
		return val, nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		return Number(val.String()), nil
	case float64:
		return Number(strconv.FormatFloat(val, 'g', -1, 64)), nil
	case float32:
		return Number(strconv.FormatFloat(float64(val), 'g', -1, 32)), nil
	case int:
		return Number(strconv.Itoa(val)), nil
	case int32:
		return Number(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return Number(strconv.FormatInt(val, 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(val, 10)), nil
	case []byte:
		return Binary(val), nil
	case map[string]interface{}:
		m := make(Mapping, len(val))
		for k, child := range val {
			node, err := FromValue(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = node
		}
		return m, nil
	case map[string]string:
		m := make(Mapping, len(val))
		for k, child := range val {
			m[k] = Text(child)
		}
		return m, nil
	case []interface{}:
		seq := make(Sequence, len(val))
		for i, child := range val {
			node, err := FromValue(child)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			seq[i] = node
		}
		return seq, nil
	case []string:
		seq := make(Sequence, len(val))
		for i, child := range val {
			seq[i] = Text(child)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// ToValue converts a tree back into generic Go values suitable for
// encoding/json
func ToValue(n Node) interface{} {
	switch v := n.(type) {
	case Mapping:
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			out[k] = ToValue(child)
		}
		return out
	case Sequence:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = ToValue(child)
		}
		return out
	case Text:
		return string(v)
	case Number:
		return json.Number(v)
	case Bool:
		return bool(v)
	case Binary:
		return []byte(v)
	default:
		return nil
	}
}
