package stream

import (
	"fmt"
	"time"

	"github.com/kumarabd/redaction-plane/pkg/settings"
)

const (
	// HeaderKeySchema and HeaderValueSchema override the configured type tags
	// for one message
	HeaderKeySchema   = "key_schema"
	HeaderValueSchema = "value_schema"
	// HeaderError and HeaderErrorPart are set on dead-lettered messages
	HeaderError     = "error"
	HeaderErrorPart = "error_part"
)

// Config contains configuration for the Kafka transform loop
type Config struct {
	Enabled         bool                `json:"enabled" yaml:"enabled" default:"false"`
	Brokers         settings.StringList `json:"brokers" yaml:"brokers"`
	GroupID         string              `json:"group_id" yaml:"group_id" default:"redaction-plane"`
	InputTopic      string              `json:"input_topic" yaml:"input_topic" default:"records"`
	OutputTopic     string              `json:"output_topic" yaml:"output_topic" default:"records-redacted"`
	DeadLetterTopic string              `json:"dead_letter_topic" yaml:"dead_letter_topic" default:""`
	KeySchema       string              `json:"key_schema" yaml:"key_schema" default:"STRING"`
	ValueSchema     string              `json:"value_schema" yaml:"value_schema" default:"JSON"`
	RetryBackoff    time.Duration       `json:"retry_backoff" yaml:"retry_backoff" default:"1s"`
	MaxFailures     int                 `json:"max_failures" yaml:"max_failures" default:"5"`
}

// Validate checks the fields needed to connect
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.brokers()) == 0 {
		return fmt.Errorf("stream: brokers are required")
	}
	if c.InputTopic == "" || c.OutputTopic == "" {
		return fmt.Errorf("stream: input_topic and output_topic are required")
	}
	if c.InputTopic == c.OutputTopic {
		return fmt.Errorf("stream: input_topic and output_topic must differ")
	}
	if c.GroupID == "" {
		return fmt.Errorf("stream: group_id is required")
	}
	return nil
}

func (c *Config) brokers() []string {
	var out []string
	for _, b := range c.Brokers.Values() {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
