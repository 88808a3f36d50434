package reasoning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

var ErrSchemaInvalid = errors.New("output does not conform to schema")

type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindTransient
	KindSchemaInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindSchemaInvalid:
		return "schema_invalid"
	default:
		return "unknown"
	}
}

func (k Kind) retryable() bool {
	return k == KindTimeout || k == KindTransient
}

// Error is the typed failure of an adapter call.
type Error struct {
	Kind     Kind
	Schema   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("reasoning %s failed (%s): %v", e.Schema, e.Kind, e.Err)
	}
	return fmt.Sprintf("reasoning %s failed (%s after %d attempt(s)): %v", e.Schema, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err, KindUnknown when err is not
// an adapter failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func classify(err error) Kind {
	if errors.Is(err, ErrSchemaInvalid) {
		return KindSchemaInvalid
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusKind(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusKind(reqErr.HTTPStatusCode)
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return statusKind(anthErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return KindTransient
	}
	return KindUnknown
}

func statusKind(code int) Kind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusConflict, code == http.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		// includes anthropic's 529 overloaded
		return KindTransient
	default:
		return KindUnknown
	}
}
