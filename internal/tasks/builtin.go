// Package tasks declares the handlers this deployment ships. Producer
// and worker hosts both call Load so the same names resolve on either
// side of the queue.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/riftworks/taskqueue/internal/registry"
)

// Load builds the process-wide registry with every built-in handler
// registered.
func Load() (*registry.Registry, error) {
	reg := registry.New()
	if err := RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterBuiltins registers the stock handlers onto reg.
func RegisterBuiltins(reg *registry.Registry) error {
	if err := reg.Register("echo", echoHandler, registry.Options{DeclaredTimeoutSeconds: 10}); err != nil {
		return err
	}
	if err := reg.Register("sleep", sleepHandler, registry.Options{DeclaredTimeoutSeconds: 300}); err != nil {
		return err
	}
	if err := reg.Register("add", addHandler, registry.Options{DeclaredTimeoutSeconds: 10}); err != nil {
		return err
	}
	return nil
}

// echoHandler returns its inputs untouched; values pass through with
// no coercion.
func echoHandler(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"args":   args,
		"kwargs": kwargs,
	}, nil
}

// sleepHandler blocks for kwargs["seconds"] (default 1), honouring
// cooperative cancellation.
func sleepHandler(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	seconds := 1.0
	if raw, ok := kwargs["seconds"]; ok {
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("seconds must be a number, got %T", raw)
		}
		seconds = f
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]interface{}{"slept_seconds": seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// addHandler sums its positional arguments.
func addHandler(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	var sum float64
	for i, raw := range args {
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("argument %d must be a number, got %T", i, raw)
		}
		sum += f
	}
	return sum, nil
}
