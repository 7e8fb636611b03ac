package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miladsoleymani/mqttengine/broker"
)

func TestOptsFromConfig(t *testing.T) {
	o := defaults()
	for _, fn := range optsFromConfig(broker.Config{
		ClientID: "svc",
		Username: "u",
		Password: "p",
		Extra:    map[string]any{"flush_on_publish": false},
	}) {
		fn(&o)
	}

	assert.Equal(t, "svc", o.name)
	assert.Equal(t, "u", o.user)
	assert.Equal(t, "p", o.pass)
	assert.False(t, o.flushOnPublish)
	assert.Len(t, o.natsOptions(), 3)
}

func TestOptsFromConfig_Defaults(t *testing.T) {
	o := defaults()
	for _, fn := range optsFromConfig(broker.Config{}) {
		fn(&o)
	}

	assert.Equal(t, "mqttengine", o.name)
	assert.True(t, o.flushOnPublish)
	assert.Len(t, o.natsOptions(), 2)
}

func TestSubject(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"sensors/temp", "sensors.temp"},
		{"sensors/+/temp", "sensors.*.temp"},
		{"sensors/#", "sensors.>"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.topic), tt.topic)
	}
	assert.Equal(t, "sensors/kitchen/temp", Topic("sensors.kitchen.temp"))
	assert.True(t, isFilter("a/+"))
	assert.False(t, isFilter("a/b"))
}
