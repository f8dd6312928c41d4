package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/types"
)

type fakeProfiles map[string]*types.Profile

func (f fakeProfiles) Get(alias string) (*types.Profile, error) {
	p, ok := f[alias]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", alias)
	}
	return p, nil
}

func TestRecover(t *testing.T) {
	reg := newTestRegistry(t)
	profiles := fakeProfiles{"tokyo": {Region: "ap-tokyo-1"}}

	// A healthy interrupted snatch: re-dispatched under a new run id.
	healthy, err := reg.Create(types.TaskTypeSnatch, "snatch", "tokyo")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(healthy, encodeProgress(t, &types.SnatchProgress{
		RunID:        "run-dead",
		StartTime:    types.NowUTC(),
		AttemptCount: 30,
		Details:      types.SnatchDetails{Shape: "VM.Standard.A1.Flex"},
	})))

	// Unparseable progress: failed with an explanation.
	garbled, err := reg.Create(types.TaskTypeSnatch, "snatch", "tokyo")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(garbled, "not a progress document"))

	// Profile gone: failed with an explanation.
	orphan, err := reg.Create(types.TaskTypeSnatch, "snatch", "deleted-account")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(orphan, encodeProgress(t, &types.SnatchProgress{
		RunID: "run-x", StartTime: types.NowUTC(),
	})))

	// Running action tasks are not recovered.
	act, err := reg.Create(types.TaskTypeAction, "stop", "tokyo")
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(act, "working"))

	recovered, err := reg.Recover(profiles)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, healthy, recovered[0].TaskID)
	assert.Equal(t, "tokyo", recovered[0].Alias)
	assert.NotEqual(t, "run-dead", recovered[0].Progress.RunID)
	assert.Equal(t, 30, recovered[0].Progress.AttemptCount)

	task, err := reg.Get(healthy)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, task.Status)
	result := types.ParseTaskResult(task.Result)
	require.NotNil(t, result.Progress)
	assert.Equal(t, recovered[0].Progress.RunID, result.Progress.RunID)
	assert.Equal(t, "task auto-recovered after a restart", result.Progress.LastMessage)

	for _, id := range []string{garbled, orphan} {
		task, err := reg.Get(id)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusFailure, task.Status)
		assert.Contains(t, task.Result, "❌")
		assert.NotEmpty(t, task.CompletedAt)
	}

	task, err = reg.Get(act)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, task.Status)
}
