// Package kafkasink publishes goToken audit events to a Kafka topic.
//
// Each event is written as one JSON message keyed by user id, so events of
// the same user land on the same partition and keep their order.
package kafkasink
