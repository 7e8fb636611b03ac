package broker_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqttengine/broker"
	"github.com/miladsoleymani/mqttengine/core"
	"github.com/miladsoleymani/mqttengine/internal/mock"
)

func TestCreate_Registered(t *testing.T) {
	var got broker.Config
	broker.Register("test-mock", func(cfg broker.Config) (core.Connection, error) {
		got = cfg
		return mock.NewConnection(), nil
	})

	conn, err := broker.Create("test-mock", broker.Config{Brokers: []string{"mqtt://h:1"}, ClientID: "c1"})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, "c1", got.ClientID)
	assert.Contains(t, broker.Names(), "test-mock")
}

func TestCreate_Unknown(t *testing.T) {
	_, err := broker.Create("no-such-broker", broker.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-broker")
}

func TestCreate_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	broker.Register("test-failing", func(broker.Config) (core.Connection, error) {
		return nil, boom
	})

	_, err := broker.Create("test-failing", broker.Config{})
	assert.ErrorIs(t, err, boom)
}
