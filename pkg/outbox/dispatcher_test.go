package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aimate/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(ctx context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(ctx context.Context, id int64, maxRetries int) error {
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	key     string
	payload any
	traceID string
}

type fakePublisher struct {
	calls  []published
	failOn string
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if routingKey == p.failOn {
		return errors.New("broker down")
	}
	p.calls = append(p.calls, published{routingKey, payload, trace.FromContext(ctx)})
	return nil
}

func TestDispatcher_ProcessPending(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "email.synced", Payload: json.RawMessage(`{"count":2}`), TraceID: "t-1"},
		{ID: 2, RoutingKey: "broken", Payload: json.RawMessage(`{}`)},
		{ID: 3, RoutingKey: "task.bulk_created", Payload: json.RawMessage(`{"count":5}`)},
	}}
	pub := &fakePublisher{failOn: "broken"}

	d := NewDispatcher(store, pub, zap.NewNop())
	sent := d.ProcessPending(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "t-1", pub.calls[0].traceID)
	assert.JSONEq(t, `{"count":2}`, string(pub.calls[0].payload.(json.RawMessage)))
}

func TestDispatcher_BatchSize(t *testing.T) {
	store := &fakeStore{pending: []*Event{{ID: 1, RoutingKey: "a"}, {ID: 2, RoutingKey: "b"}}}
	pub := &fakePublisher{}

	sent := NewDispatcher(store, pub, zap.NewNop()).WithBatchSize(1).ProcessPending(context.Background())
	assert.Equal(t, 1, sent)
}
