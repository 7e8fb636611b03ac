package core

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operations are attempted on a closed dispatcher.
	ErrClosed = errors.New("mqttengine: dispatcher is closed")

	// ErrConnectionClosed is returned by connections used after Close.
	ErrConnectionClosed = errors.New("mqttengine: connection is closed")

	// ErrNoConnection is returned when a dispatcher is created without a connection.
	ErrNoConnection = errors.New("mqttengine: connection is nil")

	// ErrEmptyTopic is returned when a topic name is empty.
	ErrEmptyTopic = errors.New("mqttengine: empty topic")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("mqttengine: nil handler")
)

// ConnectionError reports a transport failure from the broker connection.
// Op names the failed operation: "connect", "subscribe", "unsubscribe",
// "publish" or "close".
type ConnectionError struct {
	Op    string
	Topic string
	Err   error
}

func (e *ConnectionError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("mqttengine: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mqttengine: %s %q: %v", e.Op, e.Topic, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether any error in err's chain is a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

func connErr(op, topic string, err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Topic: topic, Err: err}
}
