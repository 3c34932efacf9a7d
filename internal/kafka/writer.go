// Package kafka publishes message events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	k "github.com/segmentio/kafka-go"

	"github.com/shubham07069/chatgod/internal/conversation"
)

type Writer struct {
	w *k.Writer
}

var _ conversation.Sink = (*Writer)(nil)

func NewWriter(brokers []string, topic string) *Writer {
	w := &k.Writer{
		Addr:         k.TCP(brokers...),
		Topic:        topic,
		Balancer:     &k.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: k.RequireOne,
		Async:        true,
	}
	return &Writer{w: w}
}

func (w *Writer) Close() error { return w.w.Close() }

// Emit writes ev keyed by room so events of one conversation stay ordered
// within a partition.
func (w *Writer) Emit(ctx context.Context, ev conversation.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.w.WriteMessages(ctx, k.Message{
		Key:   []byte(ev.Room),
		Value: value,
		Time:  ev.At,
		Headers: []k.Header{
			{Key: "type", Value: []byte(ev.Type)},
			{Key: "message_id", Value: []byte(strconv.Itoa(ev.MessageID))},
		},
	})
}
