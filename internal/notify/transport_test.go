package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/internal/platform/logger"
	id "gatekeeper/pkg/domain"
)

type capturePublisher struct {
	msgs []*producer.Message
	err  error
}

func (p *capturePublisher) Produce(_ context.Context, msg *producer.Message) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestKafkaTransportKeysByRecipient(t *testing.T) {
	pub := &capturePublisher{}
	wf := id.NewWorkflowID()
	tr := NewKafkaTransport(pub, "gatekeeper.notifications")

	err := tr.Send(context.Background(), Notification{
		RecipientID: "bob",
		EventType:   EventReminder,
		WorkflowID:  wf,
		OperationID: "deploy-42",
		Metadata:    json.RawMessage(`{"pending":2}`),
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "gatekeeper.notifications", msg.Topic)
	assert.Equal(t, "bob", string(msg.Key))
	assert.Equal(t, "reminder", msg.Headers["event_type"])
	assert.Equal(t, wf.String(), msg.Headers["workflow_id"])

	var decoded Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, wf, decoded.WorkflowID)
	assert.JSONEq(t, `{"pending":2}`, string(decoded.Metadata))
}

func TestKafkaTransportPropagatesProduceError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("not enough replicas")}
	err := NewKafkaTransport(pub, "t").Send(context.Background(), Notification{RecipientID: "bob"})
	assert.Error(t, err)
}

func TestMultiTransportJoinsErrors(t *testing.T) {
	var calls int
	ok := TransportFunc(func(context.Context, Notification) error { calls++; return nil })
	failing := TransportFunc(func(context.Context, Notification) error { calls++; return errors.New("down") })

	err := MultiTransport{failing, ok, NewLogTransport(logger.Discard())}.Send(context.Background(), Notification{})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}
