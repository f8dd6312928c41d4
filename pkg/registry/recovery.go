package registry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/types"
)

// ProfileGetter resolves an account alias to its credential profile.
type ProfileGetter interface {
	Get(alias string) (*types.Profile, error)
}

// Recovered describes a snatch task that survived a worker crash and
// must be re-dispatched under a fresh run id.
type Recovered struct {
	TaskID   string
	Alias    string
	Profile  *types.Profile
	Progress *types.SnatchProgress
}

// Recover scans for snatch rows left in running by a dead worker. Rows
// whose progress cannot be parsed, or whose profile no longer exists,
// are failed with an explanation; the rest get a fresh run id written
// back and are returned for re-dispatch. Runs once at worker startup.
func (r *Registry) Recover(profiles ProfileGetter) ([]Recovered, error) {
	logger := log.WithComponent("recovery")

	rows, err := r.ListRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for stuck tasks: %w", err)
	}

	var recovered []Recovered
	for _, task := range rows {
		if task.Type != types.TaskTypeSnatch {
			continue
		}

		result := types.ParseTaskResult(task.Result)
		if result.Progress == nil {
			msg := "❌ task interrupted by a restart and its progress could not be parsed"
			if err := r.SetFailure(task.ID, msg); err != nil {
				logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to fail unparseable task")
			}
			continue
		}

		profile, err := profiles.Get(task.AccountAlias)
		if err != nil {
			msg := fmt.Sprintf("❌ task interrupted by a restart; account %q no longer exists", task.AccountAlias)
			if err := r.SetFailure(task.ID, msg); err != nil {
				logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to fail orphaned task")
			}
			continue
		}

		progress := result.Progress
		progress.RunID = uuid.New().String()
		progress.LastMessage = "task auto-recovered after a restart"
		encoded, err := types.TaskResult{Progress: progress}.Encode()
		if err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to encode recovered progress")
			continue
		}
		if err := r.UpdateProgress(task.ID, encoded); err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist recovered progress")
			continue
		}

		logger.Info().Str("task_id", task.ID).Str("alias", task.AccountAlias).
			Str("run_id", progress.RunID).Msg("re-dispatching interrupted snatch")

		recovered = append(recovered, Recovered{
			TaskID:   task.ID,
			Alias:    task.AccountAlias,
			Profile:  profile,
			Progress: progress,
		})
	}
	return recovered, nil
}
