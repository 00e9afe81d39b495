package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(ProducerConfig{Topic: "t"}, logging.Discard())
	assert.Error(t, err)

	_, err = NewProducer(ProducerConfig{Brokers: []string{"k:9092"}}, logging.Discard())
	assert.Error(t, err)

	p, err := NewProducer(ProducerConfig{Brokers: []string{"k:9092"}, Topic: "mgi.relationships"}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "mgi.relationships", p.Topic())
}

func TestPublishJobEvent(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, "mgi.relationships", logging.Discard())

	err := p.PublishJobEvent(context.Background(), &JobEvent{
		EventType: "relationships.reloaded",
		Job:       "qtlcandidateload",
		RunID:     "run-1",
		Data:      json.RawMessage(`{"loaded":2}`),
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "mgi.relationships", msg.Topic)
	assert.Equal(t, "qtlcandidateload", string(msg.Key))
	assert.Equal(t, "relationships.reloaded", string(msg.Headers[0].Value))

	var decoded JobEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.JSONEq(t, `{"loaded":2}`, string(decoded.Data))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishJobEvent_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := NewProducerWithWriter(&captureWriter{err: boom}, "t", logging.Discard())

	err := p.PublishJobEvent(context.Background(), &JobEvent{EventType: "x", Job: "j"})
	assert.ErrorIs(t, err, boom)
}
