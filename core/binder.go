package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Binder turns a payload into a Go value.
type Binder interface {
	Bind(payload []byte, v any) error
}

// JSONBinder decodes JSON payloads. Strict rejects fields v does not declare.
type JSONBinder struct {
	Strict bool
}

func (b JSONBinder) Bind(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if b.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

// Decode adapts a typed function into a Handler. The payload is bound into
// a fresh T before fn runs; a bind failure is returned as the handler error.
//
//	d.Register(ctx, "sensors/temp", core.Decode(core.JSONBinder{},
//	    func(ctx context.Context, r Reading, topic string, d *core.Dispatcher) error {
//	        return store(r)
//	    }))
func Decode[T any](b Binder, fn func(ctx context.Context, v T, topic string, d *Dispatcher) error) Handler {
	if b == nil {
		b = JSONBinder{}
	}
	return func(ctx context.Context, payload []byte, topic string, d *Dispatcher) error {
		var v T
		if err := b.Bind(payload, &v); err != nil {
			return fmt.Errorf("mqttengine: bind %q: %w", topic, err)
		}
		return fn(ctx, v, topic, d)
	}
}
