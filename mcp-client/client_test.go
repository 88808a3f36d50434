package mcpclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpclient "questmaster/mcp-client"
	mcpserver "questmaster/mcp-server"
	"questmaster/quiz"
	"questmaster/reasoning"
	"questmaster/reasoning/reasoningtest"
	"questmaster/service"
	"questmaster/session"
	"questmaster/shared"
)

func newClient(t *testing.T, backend *reasoningtest.Backend) *mcpclient.Client {
	t.Helper()
	adapter := reasoning.NewAdapter(backend, reasoning.Options{
		Timeout:        time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	engine := service.NewEngine(session.NewMemoryStore(), adapter)
	generator, err := quiz.NewGenerator(adapter)
	require.NoError(t, err)
	srv, err := mcpserver.NewServer(engine, generator)
	require.NoError(t, err)

	cl, err := mcpclient.NewInProcessClient(context.Background(), srv.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })
	return cl
}

func TestClient_Dialogue(t *testing.T) {
	ctx := context.Background()
	subtasks := []shared.Subtask{
		{Title: "Shelf mounted", Description: "The shelf hangs level on the wall"},
		{Title: "Holes clean", Description: "No dust is left under the shelf"},
		{Title: "Load tested", Description: "The shelf holds ten books without bending"},
		{Title: "Tools removed", Description: "The room is left as it was found"},
	}
	backend := reasoningtest.New().
		On(service.VerdictSchema.Name,
			reasoningtest.JSON(service.Verdict{QuestionOrAck: "What wall is it?", Choices: []string{"Brick", "Drywall"}}),
			reasoningtest.JSON(service.Verdict{IsComplete: true, QuestionOrAck: "Thanks, that is clear.", Choices: []string{}}),
		).
		On(service.FinalInstructionSchema.Name, reasoningtest.JSON(map[string]string{"final_instruction": "Mount a 1 m shelf on a brick wall."})).
		On(service.SubtaskSchema.Name, reasoningtest.JSON(map[string]any{"subtasks": subtasks}))
	cl := newClient(t, backend)
	assert.Equal(t, mcpserver.Name, cl.Server())

	tools, err := cl.Tools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clarify_task", "latest_task", "generate_quiz"}, tools)

	first, err := cl.Clarify(ctx, service.Request{TaskDescription: "Install a shelf", Location: "Leeds"})
	require.NoError(t, err)
	assert.Equal(t, "What wall is it?", first.Reply)
	assert.Equal(t, []string{"Brick", "Drywall"}, first.Choices)
	assert.Empty(t, first.FinalInstruction)

	final, err := cl.Clarify(ctx, service.Request{TaskDescription: "Brick", SessionID: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, "Thanks, that is clear.", final.Reply)
	assert.Equal(t, "Mount a 1 m shelf on a brick wall.", final.FinalInstruction)
	assert.Equal(t, subtasks, final.Subtasks)

	latest, err := cl.LatestTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, latest.SessionID)
	assert.Equal(t, "Leeds", latest.Location)
	assert.Len(t, latest.Conversation, 5)
	require.Len(t, latest.Subtasks, len(subtasks))
	for i, sub := range latest.Subtasks {
		assert.Equal(t, subtasks[i].Title, sub.Title)
		assert.Equal(t, subtasks[i].Description, sub.TaskDescription)
		assert.GreaterOrEqual(t, sub.Value, 1)
		assert.LessOrEqual(t, sub.Value, 100)
	}

	_, err = cl.Clarify(ctx, service.Request{TaskDescription: "One more thing", SessionID: first.SessionID})
	var toolErr *mcpclient.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "finalized", toolErr.Kind)
	assert.ErrorIs(t, err, service.ErrFinalized)
	assert.NotErrorIs(t, err, service.ErrInput)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no task yet", func(t *testing.T) {
		cl := newClient(t, reasoningtest.New())
		_, err := cl.LatestTask(ctx)
		var toolErr *mcpclient.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "input", toolErr.Kind)
	})

	t.Run("missing description", func(t *testing.T) {
		backend := reasoningtest.New()
		cl := newClient(t, backend)
		_, err := cl.Clarify(ctx, service.Request{})
		var toolErr *mcpclient.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "input", toolErr.Kind)
		assert.Contains(t, toolErr.Message, "task description is required")
		assert.ErrorIs(t, err, service.ErrInput)
		assert.Empty(t, backend.Requests())
	})

	t.Run("schema failure", func(t *testing.T) {
		backend := reasoningtest.New().On(service.VerdictSchema.Name, reasoningtest.Step{Output: `{"is_complete": "yes"}`})
		cl := newClient(t, backend)
		_, err := cl.Clarify(ctx, service.Request{TaskDescription: "Install a shelf"})
		var toolErr *mcpclient.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "schema_invalid", toolErr.Kind)
		assert.NotErrorIs(t, err, service.ErrFinalized)
	})
}

func TestClient_GenerateQuiz(t *testing.T) {
	ctx := context.Background()
	backend := reasoningtest.New().
		On(quiz.TopicsSchema.Name, reasoningtest.JSON(map[string]any{"topics": []string{"Dental"}})).
		On(quiz.QuestionSchema.Name, reasoningtest.JSON(map[string]string{
			"question":       "How much dental care is covered?",
			"option_1":       "None",
			"option_2":       "50%",
			"option_3":       "80%",
			"option_4":       "All",
			"correct_answer": "3",
			"explanation":    "The plan covers 80%",
		}))
	cl := newClient(t, backend)

	result, err := cl.GenerateQuiz(ctx, "Acme", []string{"Dental is covered at 80%"})
	require.NoError(t, err)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, "Dental", result.Questions[0].Topic)
	assert.Equal(t, 3, result.Questions[0].Answer)

	_, err = cl.GenerateQuiz(ctx, " ", nil)
	var toolErr *mcpclient.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "input", toolErr.Kind)
}
