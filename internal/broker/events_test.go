package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cart-sync/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func cartUpdated(userID string) *models.CartUpdatedEvent {
	return &models.CartUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-" + userID,
			EventType: models.EventTypeCartUpdated,
			Timestamp: time.Now().UTC(),
		},
		UserID:     userID,
		Version:    3,
		CartCount:  4,
		CartLines:  2,
		SavedCount: 1,
		CartTotal:  42.5,
	}
}

func TestPublishCartUpdatedKeysByUser(t *testing.T) {
	writer := &captureWriter{}
	publisher := NewEventPublisher(NewProducerWithWriter(writer))

	require.NoError(t, publisher.PublishCartUpdated(context.Background(), cartUpdated("u1")))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "cart-u1", string(writer.messages[0].Key))

	var decoded models.CartUpdatedEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, int64(3), decoded.Version)
	assert.Equal(t, models.EventTypeCartUpdated, decoded.EventType)
}

func TestPublishSurfacesWriterError(t *testing.T) {
	writer := &captureWriter{err: errors.New("broker down")}
	producer := NewProducerWithWriter(writer)

	err := NewEventPublisher(producer).PublishCartUpdated(context.Background(), cartUpdated("u1"))
	assert.ErrorContains(t, err, "broker down")

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestHandleMessageRoutesCartUpdated(t *testing.T) {
	handler := NewEventHandler()

	var got *models.CartUpdatedEvent
	handler.OnCartUpdated(func(_ context.Context, e *models.CartUpdatedEvent) error {
		got = e
		return nil
	})

	value, err := json.Marshal(cartUpdated("u9"))
	require.NoError(t, err)

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "u9", got.UserID)
	assert.Equal(t, 4, got.Summary().CartCount)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	handler := NewEventHandler()
	called := false
	handler.OnCartUpdated(func(context.Context, *models.CartUpdatedEvent) error {
		called = true
		return nil
	})

	value := []byte(`{"event_id":"x","event_type":"ORDER_CREATED"}`)
	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
