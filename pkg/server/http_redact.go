package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kumarabd/redaction-plane/pkg/dispatch"
)

// RecordRequest mirrors a host record: a topic plus a key and a value, each
// with its type tag
type RecordRequest struct {
	Topic       string      `json:"topic"`
	Key         interface{} `json:"key"`
	KeySchema   string      `json:"key_schema"`
	Value       interface{} `json:"value"`
	ValueSchema string      `json:"value_schema"`
}

// TextRequest is a single free-text redaction. Language is optional.
type TextRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// TextResponse carries the redacted text and what was found
type TextResponse struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities"`
	Count    int      `json:"count"`
}

// redactRecordHandler transforms a record's key and value by their schemas
func (s *HTTP) redactRecordHandler(c *gin.Context, start time.Time) {
	const route = "/v1/redact"

	var req RecordRequest
	if err := s.decodeBody(c, &req); err != nil {
		s.fail(c, route, start, http.StatusBadRequest, gin.H{"error": "invalid json record"}, err)
		return
	}

	msg := dispatch.Message{
		Topic: req.Topic,
		Key:   dispatch.Payload{Schema: req.KeySchema, Data: req.Key},
		Value: dispatch.Payload{Schema: req.ValueSchema, Data: req.Value},
	}
	if err := s.pipeline.Transformer.Transform(c.Request.Context(), &msg); err != nil {
		body := gin.H{"error": err.Error()}
		var perr *dispatch.PayloadError
		if errors.As(err, &perr) {
			body["part"] = perr.Part
		}
		s.fail(c, route, start, http.StatusUnprocessableEntity, body, err)
		return
	}

	s.record(route, start, http.StatusOK)
	c.JSON(http.StatusOK, RecordRequest{
		Topic:       msg.Topic,
		Key:         msg.Key.Data,
		KeySchema:   msg.Key.Schema,
		Value:       msg.Value.Data,
		ValueSchema: msg.Value.Schema,
	})
}

// redactTextHandler redacts one text, detecting its language when not given
func (s *HTTP) redactTextHandler(c *gin.Context, start time.Time) {
	const route = "/v1/redact/text"

	var req TextRequest
	if err := s.decodeBody(c, &req); err != nil {
		s.fail(c, route, start, http.StatusBadRequest, gin.H{"error": "invalid json body"}, err)
		return
	}

	if req.Language != "" && s.pipeline.Languages != nil {
		if err := s.pipeline.Languages.Validate([]string{req.Language}); err != nil {
			s.fail(c, route, start, http.StatusBadRequest, gin.H{"error": err.Error()}, err)
			return
		}
	}

	out, report := s.pipeline.Redactor.RedactText(c.Request.Context(), req.Text, req.Language)

	s.record(route, start, http.StatusOK)
	c.JSON(http.StatusOK, TextResponse{
		Text:     out,
		Language: report.Language,
		Entities: report.Entities,
		Count:    report.Count,
	})
}

func (s *HTTP) decodeBody(c *gin.Context, v interface{}) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	reader, err := getBodyReader(c.Request)
	if err != nil {
		return err
	}
	defer reader.Close()

	dec := json.NewDecoder(reader)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *HTTP) fail(c *gin.Context, route string, start time.Time, status int, body gin.H, err error) {
	_ = c.Error(err)
	s.record(route, start, status)
	c.AbortWithStatusJSON(status, body)
}

func (s *HTTP) record(route string, start time.Time, status int) {
	if s.metric == nil {
		return
	}
	s.metric.IncRequestsReceived(route, strconv.Itoa(status))
	s.metric.ObserveRedactionLatency(time.Since(start), "http", status == http.StatusOK)
}
