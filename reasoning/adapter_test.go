package reasoning_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questmaster/reasoning"
	"questmaster/reasoning/reasoningtest"
	"questmaster/shared"
)

var answerSchema = reasoning.Schema{
	Name:        "answer",
	Description: "an answer",
	Fields: []reasoning.Field{
		{Name: "text", Type: reasoning.String, Description: "the answer"},
		{Name: "sure", Type: reasoning.Bool, Description: "whether the answer is certain"},
	},
}

type answer struct {
	Text string `json:"text"`
	Sure bool   `json:"sure"`
}

func fastOptions() reasoning.Options {
	return reasoning.Options{
		Timeout:        50 * time.Millisecond,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestAdapter_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes conforming output", func(t *testing.T) {
		backend := reasoningtest.New().On("answer", reasoningtest.JSON(answer{Text: "42", Sure: true}))
		adapter := reasoning.NewAdapter(backend, fastOptions())

		got, err := reasoning.Invoke[answer](ctx, adapter, reasoning.Prompt(answerSchema, "question?"))
		require.NoError(t, err)
		assert.Equal(t, answer{Text: "42", Sure: true}, got)

		reqs := backend.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, []shared.Turn{shared.UserTurn("question?")}, reqs[0].Turns)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}),
			reasoningtest.Fail(&openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}),
			reasoningtest.JSON(answer{Text: "ok"}),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		got, err := reasoning.Invoke[answer](ctx, adapter, reasoning.Prompt(answerSchema, "q"))
		require.NoError(t, err)
		assert.Equal(t, "ok", got.Text)
		assert.Equal(t, 3, backend.Calls("answer"))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}),
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}),
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}),
			reasoningtest.JSON(answer{Text: "too late"}),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		_, err := adapter.Invoke(ctx, reasoning.Prompt(answerSchema, "q"))
		var failure *reasoning.Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, reasoning.KindTransient, failure.Kind)
		assert.Equal(t, 3, failure.Attempts)
		assert.Equal(t, "answer", failure.Schema)
		assert.Equal(t, 1, backend.Pending())
	})

	t.Run("times out each attempt", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Hang(time.Second),
			reasoningtest.Hang(time.Second),
			reasoningtest.Hang(time.Second),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		_, err := adapter.Invoke(ctx, reasoning.Prompt(answerSchema, "q"))
		assert.Equal(t, reasoning.KindTimeout, reasoning.KindOf(err))
		assert.Equal(t, 3, backend.Calls("answer"))
	})

	t.Run("schema failure is not retried", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Step{Output: `{"text": "no sure field"}`},
			reasoningtest.JSON(answer{Text: "never asked"}),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		_, err := adapter.Invoke(ctx, reasoning.Prompt(answerSchema, "q"))
		require.ErrorIs(t, err, reasoning.ErrSchemaInvalid)
		assert.Equal(t, reasoning.KindSchemaInvalid, reasoning.KindOf(err))
		assert.Equal(t, 1, backend.Calls("answer"))
	})

	t.Run("unknown failure is not retried", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		_, err := adapter.Invoke(ctx, reasoning.Prompt(answerSchema, "q"))
		assert.Equal(t, reasoning.KindUnknown, reasoning.KindOf(err))
		assert.Equal(t, 1, backend.Calls("answer"))

		var apiErr *openai.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "bad key", apiErr.Message)
	})

	t.Run("stops when the caller cancels", func(t *testing.T) {
		backend := reasoningtest.New().On("answer", reasoningtest.Hang(time.Second))
		opts := fastOptions()
		opts.Timeout = time.Second
		adapter := reasoning.NewAdapter(backend, opts)

		cancelCtx, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := adapter.Invoke(cancelCtx, reasoning.Prompt(answerSchema, "q"))
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, backend.Calls("answer"))
	})

	t.Run("never returns partially typed output", func(t *testing.T) {
		outputs := []string{
			`{"text": 42, "sure": true}`,
			`{"text": "a", "sure": "true"}`,
			`{"text": "a", "sure": true, "extra": 1}`,
			`{}`,
			``,
		}
		for _, out := range outputs {
			backend := reasoningtest.New().On("answer", reasoningtest.Step{Output: out})
			adapter := reasoning.NewAdapter(backend, fastOptions())
			_, err := reasoning.Invoke[answer](ctx, adapter, reasoning.Prompt(answerSchema, "q"))
			assert.ErrorIs(t, err, reasoning.ErrSchemaInvalid, "output %q", out)
		}
	})

	t.Run("decode failure reports the attempts used", func(t *testing.T) {
		backend := reasoningtest.New().On("answer",
			reasoningtest.Fail(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}),
			reasoningtest.JSON(answer{Text: "not a number", Sure: true}),
		)
		adapter := reasoning.NewAdapter(backend, fastOptions())

		_, err := reasoning.Invoke[struct {
			Text int `json:"text"`
		}](ctx, adapter, reasoning.Prompt(answerSchema, "q"))
		var failure *reasoning.Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, reasoning.KindSchemaInvalid, failure.Kind)
		assert.Equal(t, 2, failure.Attempts)
	})
}

func TestAdapter_InvokeTemplate(t *testing.T) {
	tmpl, err := reasoning.ParseTemplate("ask", "Answer this: {{.Question}}")
	require.NoError(t, err)

	backend := reasoningtest.New().On("answer", reasoningtest.JSON(answer{Text: "yes", Sure: true}))
	adapter := reasoning.NewAdapter(backend, fastOptions())

	got, err := reasoning.InvokeTemplate[answer](context.Background(), adapter, tmpl, answerSchema, map[string]string{"Question": "ready?"})
	require.NoError(t, err)
	assert.True(t, got.Sure)
	assert.Equal(t, "Answer this: ready?", backend.Requests()[0].Turns[0].Text)

	_, err = reasoning.InvokeTemplate[answer](context.Background(), adapter, tmpl, answerSchema, map[string]string{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, reasoning.ErrSchemaInvalid))
	assert.Equal(t, 1, backend.Calls("answer"))
}
