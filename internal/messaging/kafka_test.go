package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/messaging"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	at := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	w := &fakeWriter{}
	p := messaging.NewKafkaPublisher(w, nil)

	events := []domain.BreakEvent{
		{BreakID: "b-1", Version: 1, Trigger: domain.TriggerCreate, ToStatus: domain.StatusOpen, At: at},
		{BreakID: "b-2", Version: 2, Trigger: domain.TriggerAutoResolve, FromStatus: domain.StatusOpen, ToStatus: domain.StatusResolved, At: at},
	}
	require.NoError(t, p.Publish(context.Background(), events))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "b-1", string(w.msgs[0].Key))
	assert.Equal(t, "event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, messaging.EventBreakCreated, string(w.msgs[0].Headers[0].Value))

	var body struct {
		Type  string            `json:"type"`
		Event domain.BreakEvent `json:"event"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &body))
	assert.Equal(t, messaging.EventBreakResolved, body.Type)
	assert.Equal(t, domain.StatusResolved, body.Event.ToStatus)
	assert.Equal(t, int64(2), body.Event.Version)

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := messaging.NewKafkaPublisher(w, nil)

	err := p.Publish(context.Background(), []domain.BreakEvent{{BreakID: "b-1", Trigger: domain.TriggerCreate}})
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestEventType(t *testing.T) {
	tests := []struct {
		ev   domain.BreakEvent
		want string
	}{
		{domain.BreakEvent{Trigger: domain.TriggerCreate, ToStatus: domain.StatusOpen}, messaging.EventBreakCreated},
		{domain.BreakEvent{Trigger: domain.TriggerResolve, ToStatus: domain.StatusResolved}, messaging.EventBreakResolved},
		{domain.BreakEvent{Trigger: domain.TriggerEscalate, ToStatus: domain.StatusEscalated}, messaging.EventBreakEscalated},
		{domain.BreakEvent{Trigger: domain.TriggerAssign, ToStatus: domain.StatusAssigned}, messaging.EventBreakTransition},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, messaging.EventType(tt.ev))
		})
	}
}
