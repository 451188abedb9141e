// Package agent defines the boundary between the relay and the external
// agent runtime.
package agent

import (
	"context"

	"github.com/deepresearch/research-agent/pkg/models"
)

// Stream is one running agent invocation.
//
// Next blocks until the runtime emits its next event. It returns io.EOF once
// the runtime is exhausted, a *RunError if the runtime failed, or the
// context error if ctx ends first. Close abandons the invocation and may be
// called more than once.
type Stream interface {
	Next(ctx context.Context) (models.Event, error)
	Close() error
}

// RunError is a runtime failure surfaced mid-stream.
type RunError struct {
	Message string
	Details any
}

func (e *RunError) Error() string {
	return e.Message
}
