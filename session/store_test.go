package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questmaster/shared"
)

type storeFactory func(t *testing.T) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			st, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions", "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
}

func TestStore(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("find or create", func(t *testing.T) { testFindOrCreate(t, factory(t)) })
			t.Run("copies", func(t *testing.T) { testCopies(t, factory(t)) })
			t.Run("round trip", func(t *testing.T) { testRoundTrip(t, factory(t)) })
			t.Run("latest", func(t *testing.T) { testLatest(t, factory(t)) })
		})
	}
}

func testFindOrCreate(t *testing.T, st Store) {
	ctx := context.Background()

	created, isNew, err := st.FindOrCreate(ctx, "")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Conversation)
	assert.NotNil(t, created.Subtasks)

	_, err = st.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound, "a new session is only stored by Save")
	_, err = st.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Save(ctx, created))
	found, isNew, err := st.FindOrCreate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, found.ID)

	other, isNew, err := st.FindOrCreate(ctx, "no-such-session")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, "no-such-session", other.ID)
	assert.NotEqual(t, created.ID, other.ID)

	_, err = st.Get(ctx, "no-such-session")
	require.ErrorIs(t, err, ErrNotFound)
}

func testCopies(t *testing.T, st Store) {
	ctx := context.Background()
	s, _, err := st.FindOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, s))

	s.Append(shared.UserTurn("fix the sink"))
	s.FillContext("Lyon", "")

	stored, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Conversation, "unsaved changes must not leak into the store")
	assert.Empty(t, stored.Location)

	require.NoError(t, st.Save(ctx, s))
	stored, err = st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Conversation, 1)

	stored.Conversation[0].Text = "changed"
	again, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fix the sink", again.Conversation[0].Text)
}

func testRoundTrip(t *testing.T, st Store) {
	ctx := context.Background()
	s, _, err := st.FindOrCreate(ctx, "")
	require.NoError(t, err)

	s.FillContext("  Berlin ", "weekends only")
	s.Append(
		shared.SystemTurn("Task location: Berlin"),
		shared.UserTurn("paint the hallway"),
		shared.AssistantTurn("What colour?"),
	)
	require.NoError(t, st.Save(ctx, s))

	loaded, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	loaded.FillContext("Munich", "any time")
	assert.Equal(t, "Berlin", loaded.Location)
	assert.Equal(t, "weekends only", loaded.ExtraInstructions)

	subtasks := []shared.Subtask{
		{Title: "Walls prepared", Description: "Holes filled and sanded"},
		{Title: "Walls painted", Description: "Two coats of white applied"},
	}
	require.NoError(t, loaded.Finalize("Paint the hallway white in Berlin on a weekend.", subtasks))
	require.NoError(t, st.Save(ctx, loaded))

	final, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, final.Finalized())
	if diff := cmp.Diff(s.Conversation, final.Conversation); diff != "" {
		t.Errorf("conversation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(subtasks, final.Subtasks); diff != "" {
		t.Errorf("subtasks mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, final.CreatedAt.Equal(s.CreatedAt))
	assert.False(t, final.UpdatedAt.Before(final.CreatedAt))

	err = final.Finalize("again", subtasks)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func testLatest(t *testing.T, st Store) {
	ctx := context.Background()
	_, err := st.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first, _, err := st.FindOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, first))
	second, _, err := st.FindOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, second))

	// an unsaved session never becomes the latest one
	_, _, err = st.FindOrCreate(ctx, "")
	require.NoError(t, err)

	// saving an older session must not make it the latest one
	first.Append(shared.UserTurn("late update"))
	require.NoError(t, st.Save(ctx, first))

	latest, err := st.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSessionFinalize(t *testing.T) {
	subtasks := []shared.Subtask{{Title: "Done", Description: "It is done"}}

	tests := []struct {
		name        string
		instruction string
		subtasks    []shared.Subtask
		wantErr     string
	}{
		{name: "ok", instruction: "Do it.", subtasks: subtasks},
		{name: "blank instruction", instruction: "  ", subtasks: subtasks, wantErr: "empty final instruction"},
		{name: "no subtasks", instruction: "Do it.", wantErr: "no subtasks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("s1", time.Now())
			err := s.Finalize(tt.instruction, tt.subtasks)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.False(t, s.Finalized())
				assert.Empty(t, s.Subtasks)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.instruction, s.FinalInstruction)
			assert.Equal(t, tt.subtasks, s.Subtasks)
		})
	}
}

func TestSessionClone(t *testing.T) {
	s := New("s1", time.Now())
	s.Append(shared.UserTurn("a"))
	c := s.Clone()
	c.Append(shared.AssistantTurn("b"))
	c.Conversation[0].Text = "changed"

	assert.Len(t, s.Conversation, 1)
	assert.Equal(t, "a", s.Conversation[0].Text)

	last, ok := c.LastTurn()
	require.True(t, ok)
	assert.Equal(t, shared.RoleAssistant, last.Role)

	_, ok = New("s2", time.Now()).LastTurn()
	assert.False(t, ok)
}
