package kafka

import (
	"testing"

	k "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"k1:9092"}, "chatgod.messages")
	defer w.Close()

	assert.Equal(t, "chatgod.messages", w.w.Topic)
	assert.Equal(t, "k1:9092", w.w.Addr.String())
	assert.IsType(t, &k.Hash{}, w.w.Balancer)
	assert.True(t, w.w.Async)
}
