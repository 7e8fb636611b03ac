package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(nil, "g")
	require.Error(t, err)
}

func TestOptsFromConfig(t *testing.T) {
	o := defaults()
	for _, fn := range optsFromConfig(broker.Config{Extra: map[string]any{
		"async":      true,
		"batch_size": 10,
		"max_bytes":  2048,
	}}) {
		fn(&o)
	}
	assert.True(t, o.async)
	assert.Equal(t, 10, o.batchSize)
	assert.Equal(t, 2048, o.maxBytes)
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "sensors.temp", TopicName("sensors/temp"))
	assert.Equal(t, "plain", TopicName("plain"))

	o := defaults()
	WithTopicName(strings.ToUpper)(&o)
	assert.Equal(t, "A/B", o.topicName("a/b"))
	WithTopicName(nil)(&o)
	assert.NotNil(t, o.topicName)
}

func TestSubscribe_RejectsWildcards(t *testing.T) {
	c, err := New([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	defer c.Close()

	for _, topic := range []string{"sensors/+", "sensors/#"} {
		assert.ErrorIs(t, c.Subscribe(context.Background(), topic), ErrWildcard)
	}
}

func TestConnection_ClosedOperations(t *testing.T) {
	c, err := New([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	assert.ErrorIs(t, c.Subscribe(ctx, "a"), core.ErrConnectionClosed)
	assert.ErrorIs(t, c.Publish(ctx, "a", []byte("x"), nil), core.ErrConnectionClosed)
	assert.NoError(t, c.Unsubscribe(ctx, "unknown"))
}

type fakeReader struct {
	msgs   chan kafka.Message
	closed chan struct{}

	mu        sync.Mutex
	cfg       kafka.ReaderConfig
	committed []string
}

func newFakeReader() *fakeReader {
	return &fakeReader{msgs: make(chan kafka.Message), closed: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, string(m.Value))
	}
	return nil
}

func (r *fakeReader) Close() error {
	close(r.closed)
	return nil
}

func (r *fakeReader) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newFakeConnection(t *testing.T, group string) (*Connection, *fakeReader, *fakeWriter) {
	t.Helper()
	c, err := New([]string{"localhost:9092"}, group)
	require.NoError(t, err)
	fr, fw := newFakeReader(), &fakeWriter{}
	c.newReader = func(cfg kafka.ReaderConfig) messageReader {
		fr.mu.Lock()
		fr.cfg = cfg
		fr.mu.Unlock()
		return fr
	}
	c.writer = fw
	return c, fr, fw
}

func TestConnection_ConsumeDispatchesAndCommits(t *testing.T) {
	c, fr, _ := newFakeConnection(t, "svc")
	defer c.Close()

	got := make(chan string, 3)
	c.OnMessage(func(topic string, payload []byte) error {
		got <- topic + "=" + string(payload)
		if string(payload) == "bad" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, c.Subscribe(context.Background(), "sensors/temp"))

	fr.mu.Lock()
	assert.Equal(t, "sensors.temp", fr.cfg.Topic)
	assert.Equal(t, "svc", fr.cfg.GroupID)
	fr.mu.Unlock()

	for _, v := range []string{"23.5", "bad", "24.0"} {
		fr.msgs <- kafka.Message{Topic: "sensors.temp", Value: []byte(v)}
		select {
		case m := <-got:
			assert.Equal(t, "sensors/temp="+v, m)
		case <-time.After(time.Second):
			t.Fatalf("message %q was not dispatched", v)
		}
	}

	// A failed dispatch leaves its offset uncommitted.
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"23.5", "24.0"}, fr.commits())
	}, time.Second, 10*time.Millisecond)
}

func TestConnection_UnsubscribeFromHandler(t *testing.T) {
	c, fr, _ := newFakeConnection(t, "")

	returned := make(chan error, 1)
	c.OnMessage(func(topic string, _ []byte) error {
		returned <- c.Unsubscribe(context.Background(), topic)
		return nil
	})
	require.NoError(t, c.Subscribe(context.Background(), "a"))

	fr.msgs <- kafka.Message{Topic: "a", Value: []byte("x")}
	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe called from a handler did not return")
	}
	select {
	case <-fr.closed:
	case <-time.After(time.Second):
		t.Fatal("reader was not closed")
	}
	assert.Empty(t, fr.commits())
	require.NoError(t, c.Close())
}

func TestConnection_CloseFromHandler(t *testing.T) {
	c, fr, _ := newFakeConnection(t, "")

	returned := make(chan error, 1)
	c.OnMessage(func(string, []byte) error {
		returned <- c.Close()
		return nil
	})
	require.NoError(t, c.Subscribe(context.Background(), "a"))

	fr.msgs <- kafka.Message{Topic: "a", Value: []byte("x")}
	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from a handler did not return")
	}
	select {
	case <-fr.closed:
	case <-time.After(time.Second):
		t.Fatal("reader was not closed")
	}
}

func TestConnection_PublishMapsTopic(t *testing.T) {
	c, _, fw := newFakeConnection(t, "")
	defer c.Close()

	require.NoError(t, c.Publish(context.Background(), "out/y", []byte("ping"), nil))

	fw.mu.Lock()
	defer fw.mu.Unlock()
	require.Len(t, fw.messages, 1)
	assert.Equal(t, "out.y", fw.messages[0].Topic)
	assert.Equal(t, []byte("out/y"), fw.messages[0].Key)
	assert.Equal(t, []byte("ping"), fw.messages[0].Value)
}
