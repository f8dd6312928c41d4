package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Create(types.TaskTypeSnatch, "snatch VM.Standard.A1.Flex", "tokyo")
	require.NoError(t, err)

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, types.TaskTypeSnatch, task.Type)
	assert.Equal(t, "tokyo", task.AccountAlias)
	assert.NotEmpty(t, task.CreatedAt)
	assert.Empty(t, task.CompletedAt)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitions(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Create(types.TaskTypeAction, "stop instance", "a")
	require.NoError(t, err)

	// pending -> success is not permitted.
	assert.Error(t, reg.SetSuccess(id, "done"))

	require.NoError(t, reg.SetRunning(id, "working"))
	require.NoError(t, reg.SetSuccess(id, "✅ done"))

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, task.Status)
	assert.NotEmpty(t, task.CompletedAt)

	// Terminal rows never move.
	assert.Error(t, reg.SetRunning(id, "again"))
	assert.Error(t, reg.SetFailure(id, "no"))
}

func encodeProgress(t *testing.T, p *types.SnatchProgress) string {
	t.Helper()
	encoded, err := types.TaskResult{Progress: p}.Encode()
	require.NoError(t, err)
	return encoded
}

func TestPauseAndResume(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Create(types.TaskTypeSnatch, "snatch", "a")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(id, encodeProgress(t, &types.SnatchProgress{
		RunID:        "run-old",
		StartTime:    types.NowUTC(),
		AttemptCount: 12,
		Details:      types.SnatchDetails{Shape: "VM.Standard.A1.Flex"},
	})))

	require.NoError(t, reg.Pause(id, "task stopped by user"))

	task, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPaused, task.Status)
	result := types.ParseTaskResult(task.Result)
	require.NotNil(t, result.Progress)
	assert.Empty(t, result.Progress.RunID)
	assert.Equal(t, "task stopped by user", result.Progress.LastMessage)
	assert.Equal(t, 12, result.Progress.AttemptCount)

	// Pausing a paused task fails.
	assert.Error(t, reg.Pause(id, "again"))

	progress, err := reg.Resume(id)
	require.NoError(t, err)
	assert.NotEmpty(t, progress.RunID)
	assert.NotEqual(t, "run-old", progress.RunID)
	assert.Equal(t, 12, progress.AttemptCount)

	task, err = reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, task.Status)

	// Resuming a running task fails.
	_, err = reg.Resume(id)
	assert.Error(t, err)
}

func TestDeleteRules(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Create(types.TaskTypeSnatch, "snatch", "a")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(id, encodeProgress(t, &types.SnatchProgress{
		RunID: "r", StartTime: types.NowUTC(),
	})))

	// Running rows are protected.
	assert.Error(t, reg.Delete(id))

	require.NoError(t, reg.Pause(id, "stop"))
	require.NoError(t, reg.Delete(id))

	_, err = reg.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListViews(t *testing.T) {
	reg := newTestRegistry(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := reg.Create(types.TaskTypeSnatch, fmt.Sprintf("snatch %d", i), "a")
		require.NoError(t, err)
		require.NoError(t, reg.SetRunning(id, encodeProgress(t, &types.SnatchProgress{
			RunID: "r", StartTime: types.NowUTC(),
		})))
		ids = append(ids, id)
	}
	require.NoError(t, reg.Pause(ids[1], "stop"))
	require.NoError(t, reg.SetSuccess(ids[2], "🎉 done"))

	actionID, err := reg.Create(types.TaskTypeAction, "stop", "a")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(actionID, "working"))

	running, err := reg.ListRunningSnatch()
	require.NoError(t, err)
	assert.Len(t, running, 2) // running + paused, never the action task

	completed, err := reg.ListCompletedSnatch(0)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, ids[2], completed[0].ID)

	all, err := reg.ListRunning()
	require.NoError(t, err)
	assert.Len(t, all, 2) // the running snatch and the running action
}

func TestCountByStatus(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Create(types.TaskTypeSnatch, "snatch", "a")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(id, "x"))
	_, err = reg.Create(types.TaskTypeAction, "act", "a")
	require.NoError(t, err)

	counts, err := reg.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.TaskTypeSnatch][types.TaskStatusRunning])
	assert.Equal(t, 1, counts[types.TaskTypeAction][types.TaskStatusPending])
}
