package kafkasink

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	goToken "github.com/MrEthical07/goToken"
)

// ErrNilWriter is returned by [New] when no writer is supplied.
var ErrNilWriter = errors.New("kafkasink: nil writer")

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink implements goToken.AuditSink on top of a Kafka writer.
type Sink struct {
	writer MessageWriter
	topic  string
}

var _ goToken.AuditSink = (*Sink)(nil)

// New returns a sink writing through w. topic may be empty when the writer
// was built with a fixed topic.
func New(w MessageWriter, topic string) (*Sink, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	return &Sink{writer: w, topic: topic}, nil
}

// NewWriter builds a kafka.Writer suitable for audit traffic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Emit implements goToken.AuditSink.
func (s *Sink) Emit(ctx context.Context, event goToken.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return s.writer.WriteMessages(ctx, msg)
}
