package nats

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqttengine/core"
)

func runServer(t *testing.T) string {
	t.Helper()
	s := natsserver.RunRandClientPortServer()
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestConnection_RedirectThroughServer(t *testing.T) {
	c, err := New(runServer(t))
	require.NoError(t, err)
	d, err := core.New(c, core.WithMatcher(core.FilterMatcher{}))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	got := make(chan string, 1)
	require.NoError(t, d.Register(ctx, "sensors/+/temp", func(_ context.Context, payload []byte, topic string, _ *core.Dispatcher) error {
		got <- topic + "=" + string(payload)
		return nil
	}))
	require.NoError(t, d.Redirect(ctx, "in/x", "sensors/kitchen/temp"))
	assert.Equal(t, []string{"sensors/+/temp", "in/x"}, d.Topics())

	require.NoError(t, d.Publish(ctx, "in/x", []byte("21")))

	select {
	case m := <-got:
		assert.Equal(t, "sensors/kitchen/temp=21", m)
	case <-time.After(2 * time.Second):
		t.Fatal("redirected message was not delivered")
	}
}

func TestConnection_UnsubscribeStopsDelivery(t *testing.T) {
	c, err := New(runServer(t))
	require.NoError(t, err)
	defer c.Close()

	got := make(chan string, 4)
	c.OnMessage(func(topic string, _ []byte) error {
		got <- topic
		return nil
	})

	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx, "a/b"))
	require.NoError(t, c.Publish(ctx, "a/b", []byte("1"), nil))
	select {
	case topic := <-got:
		assert.Equal(t, "a/b", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	require.NoError(t, c.Unsubscribe(ctx, "a/b"))
	require.NoError(t, c.Publish(ctx, "a/b", []byte("2"), nil))
	select {
	case topic := <-got:
		t.Fatalf("unexpected delivery on %q after unsubscribe", topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnection_CloseFromHandler(t *testing.T) {
	c, err := New(runServer(t))
	require.NoError(t, err)
	d, err := core.New(c)
	require.NoError(t, err)

	ctx := context.Background()
	closed := make(chan error, 1)
	require.NoError(t, d.Register(ctx, "a", func(context.Context, []byte, string, *core.Dispatcher) error {
		closed <- d.Close()
		return nil
	}))
	require.NoError(t, d.Publish(ctx, "a", []byte("x")))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from a handler did not return")
	}
}
