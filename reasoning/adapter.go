// Package reasoning wraps structured-output text generation backends behind a
// single retrying, schema-checking adapter.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"questmaster/shared"
)

// Request is one structured reasoning call: a conversation and the schema the
// answer has to follow. A single prompt is a conversation of one user turn.
type Request struct {
	Schema Schema
	Turns  []shared.Turn
}

func Prompt(schema Schema, prompt string) Request {
	return Request{Schema: schema, Turns: []shared.Turn{shared.UserTurn(prompt)}}
}

func Conversation(schema Schema, turns []shared.Turn) Request {
	copied := make([]shared.Turn, len(turns))
	copy(copied, turns)
	return Request{Schema: schema, Turns: copied}
}

// Backend produces the raw JSON answer for a request. Implementations do not
// retry, the Adapter owns the retry policy.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) ([]byte, error)
}

type Options struct {
	// Timeout bounds every single backend attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a timeout or transient failure.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Adapter is safe for concurrent use and keeps no state between calls.
type Adapter struct {
	backend Backend
	opts    Options
}

func NewAdapter(backend Backend, opts Options) *Adapter {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return &Adapter{backend: backend, opts: opts}
}

func (a *Adapter) Backend() string {
	return a.backend.Name()
}

func (a *Adapter) newBackOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.opts.InitialBackoff
	exp.MaxInterval = a.opts.MaxBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(a.opts.MaxRetries)), ctx)
}

// Invoke runs req against the backend and returns output that conforms to
// req.Schema. Every failure is an *Error.
func (a *Adapter) Invoke(ctx context.Context, req Request) ([]byte, error) {
	raw, _, err := a.invoke(ctx, req)
	return raw, err
}

func (a *Adapter) invoke(ctx context.Context, req Request) ([]byte, int, error) {
	attempts := 0
	var out []byte

	op := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		start := time.Now()
		raw, err := a.backend.Complete(callCtx, req)
		if err != nil {
			kind := classify(err)
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				kind = KindTimeout
			}
			failure := &Error{Kind: kind, Schema: req.Schema.Name, Err: err}
			if kind.retryable() && ctx.Err() == nil {
				return failure
			}
			return backoff.Permanent(failure)
		}
		log.Debug().
			Str("backend", a.backend.Name()).
			Str("schema", req.Schema.Name).
			Int("turns", len(req.Turns)).
			Int("bytes", len(raw)).
			Dur("took", time.Since(start)).
			Msg("reasoning call done")

		if err := req.Schema.Validate(raw); err != nil {
			return backoff.Permanent(&Error{Kind: KindSchemaInvalid, Schema: req.Schema.Name, Err: err})
		}
		out = raw
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Str("schema", req.Schema.Name).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Str("kind", KindOf(err).String()).
			Msg("reasoning call failed, retrying")
	}

	err := backoff.RetryNotify(op, a.newBackOff(ctx), notify)
	if err == nil {
		return out, attempts, nil
	}

	var failure *Error
	if !errors.As(err, &failure) {
		// the parent context ended while waiting between attempts
		kind := KindUnknown
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		failure = &Error{Kind: kind, Schema: req.Schema.Name, Err: err}
	}
	failure.Attempts = attempts
	return nil, attempts, failure
}

// Invoke runs req and decodes the conforming output into T.
func Invoke[T any](ctx context.Context, a *Adapter, req Request) (T, error) {
	var result T
	raw, attempts, err := a.invoke(ctx, req)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, &Error{
			Kind:     KindSchemaInvalid,
			Schema:   req.Schema.Name,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: decode: %v", ErrSchemaInvalid, err),
		}
	}
	return result, nil
}

// InvokeTemplate renders tmpl with bindings and sends it as a single prompt.
func InvokeTemplate[T any](ctx context.Context, a *Adapter, tmpl *Template, schema Schema, bindings any) (T, error) {
	var result T
	prompt, err := tmpl.Render(bindings)
	if err != nil {
		return result, err
	}
	return Invoke[T](ctx, a, Prompt(schema, prompt))
}
