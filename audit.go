package goToken

import (
	"io"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
)

// AuditEvent is one token lifecycle event delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher. Returned errors
// are logged and never affect the operation that produced the event.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
