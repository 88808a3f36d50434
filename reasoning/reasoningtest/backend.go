// Package reasoningtest provides a scripted reasoning.Backend for tests.
package reasoningtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"questmaster/reasoning"
)

// Step is one scripted backend answer.
type Step struct {
	Output string
	Err    error
	// Delay is waited before answering, honouring the call context.
	Delay time.Duration
}

func JSON(v any) Step {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Step{Output: string(data)}
}

func Fail(err error) Step {
	return Step{Err: err}
}

func Hang(d time.Duration) Step {
	return Step{Delay: d, Output: "{}"}
}

// Backend answers requests from per-schema queues. An unscripted call fails.
type Backend struct {
	mu       sync.Mutex
	steps    map[string][]Step
	requests []reasoning.Request
}

func New() *Backend {
	return &Backend{steps: map[string][]Step{}}
}

func (b *Backend) On(schema string, steps ...Step) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps[schema] = append(b.steps[schema], steps...)
	return b
}

func (b *Backend) Name() string {
	return "scripted"
}

func (b *Backend) Complete(ctx context.Context, req reasoning.Request) ([]byte, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	queue := b.steps[req.Schema.Name]
	if len(queue) == 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("no scripted answer for schema %s", req.Schema.Name)
	}
	step := queue[0]
	b.steps[req.Schema.Name] = queue[1:]
	b.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return []byte(step.Output), nil
}

func (b *Backend) Requests() []reasoning.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]reasoning.Request, len(b.requests))
	copy(res, b.requests)
	return res
}

// Calls counts the requests made for one schema.
func (b *Backend) Calls(schema string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, req := range b.requests {
		if req.Schema.Name == schema {
			n++
		}
	}
	return n
}

// Pending counts scripted answers not consumed yet.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, queue := range b.steps {
		n += len(queue)
	}
	return n
}
