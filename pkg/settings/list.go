// Package settings normalizes configuration values that may arrive either as
// a single comma-delimited string or as an already-split list.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToList converts v into an ordered list of strings.
//
// A list is returned as given, so an empty list stays empty. A string is split
// on commas and every part is trimmed; the empty string therefore yields a
// list holding one empty element. Callers rely on that difference.
func ToList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list element %d: expected string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	case string:
		return splitList(val), nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", v)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// StringList is a config field that accepts "a, b" as well as ["a", "b"]
type StringList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	list, err := ToList(raw)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		raw = s
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		raw = items
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
	list, err := ToList(raw)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// Values returns the list as a plain slice
func (l StringList) Values() []string {
	return []string(l)
}
