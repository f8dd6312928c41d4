package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/opensnatch/snatchd/pkg/types"
)

var bucketTasks = []byte("tasks")

// ErrNotFound is returned when a task row does not exist.
var ErrNotFound = fmt.Errorf("task not found")

// Registry is the durable record of every asynchronous unit of work,
// backed by a single-file BoltDB database. Bolt gives one writer and
// many readers with crash-consistent transactions, which is all the
// task table needs.
type Registry struct {
	db *bolt.DB
}

// NewRegistry opens (or creates) the task database under dataDir.
func NewRegistry(dataDir string) (*Registry, error) {
	dbPath := filepath.Join(dataDir, "snatchd.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTasks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks bucket: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Create inserts a new pending row and returns its id.
func (r *Registry) Create(taskType types.TaskType, name, alias string) (string, error) {
	task := &types.Task{
		ID:           uuid.New().String(),
		Type:         taskType,
		Name:         name,
		Status:       types.TaskStatusPending,
		CreatedAt:    types.NowUTC(),
		AccountAlias: alias,
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		return putTask(tx, task)
	})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// Get returns the row stored under id.
func (r *Registry) Get(id string) (*types.Task, error) {
	var task *types.Task
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		task, err = getTask(tx, id)
		return err
	})
	return task, err
}

// UpdateProgress sets the result field without touching status.
func (r *Registry) UpdateProgress(id, result string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		task, err := getTask(tx, id)
		if err != nil {
			return err
		}
		task.Result = result
		return putTask(tx, task)
	})
}

// SetRunning transitions a row to running.
func (r *Registry) SetRunning(id, result string) error {
	return r.transition(id, types.TaskStatusRunning, result)
}

// SetPaused transitions a row to paused.
func (r *Registry) SetPaused(id, result string) error {
	return r.transition(id, types.TaskStatusPaused, result)
}

// SetSuccess transitions a row to success and stamps completed_at.
func (r *Registry) SetSuccess(id, result string) error {
	return r.transition(id, types.TaskStatusSuccess, result)
}

// SetFailure transitions a row to failure and stamps completed_at.
func (r *Registry) SetFailure(id, result string) error {
	return r.transition(id, types.TaskStatusFailure, result)
}

func (r *Registry) transition(id string, next types.TaskStatus, result string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		task, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.Status != next && !task.Status.CanTransition(next) {
			return fmt.Errorf("illegal transition %s -> %s for task %s", task.Status, next, id)
		}
		task.Status = next
		task.Result = result
		if next.Terminal() {
			task.CompletedAt = types.NowUTC()
		}
		return putTask(tx, task)
	})
}

// ListRunningSnatch returns snatch rows that are running or paused,
// newest first.
func (r *Registry) ListRunningSnatch() ([]*types.Task, error) {
	return r.list(func(t *types.Task) bool {
		return t.Type == types.TaskTypeSnatch &&
			(t.Status == types.TaskStatusRunning || t.Status == types.TaskStatusPaused)
	}, 0)
}

// ListCompletedSnatch returns terminal snatch rows, newest first,
// capped at limit (50 when zero).
func (r *Registry) ListCompletedSnatch(limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(func(t *types.Task) bool {
		return t.Type == types.TaskTypeSnatch && t.Status.Terminal()
	}, limit)
}

// ListRunning returns every row currently marked running, regardless
// of type. Used by crash recovery.
func (r *Registry) ListRunning() ([]*types.Task, error) {
	return r.list(func(t *types.Task) bool {
		return t.Status == types.TaskStatusRunning
	}, 0)
}

func (r *Registry) list(keep func(*types.Task) bool, limit int) ([]*types.Task, error) {
	var tasks []*types.Task
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if keep(&task) {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// created_at trims trailing fractional zeros, but lexical order
	// on the layout still matches chronological order.
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt > tasks[j].CreatedAt
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// CountByStatus returns row counts keyed by status, split by type.
// Used by the metrics collector.
func (r *Registry) CountByStatus() (map[types.TaskType]map[types.TaskStatus]int, error) {
	counts := make(map[types.TaskType]map[types.TaskStatus]int)
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if counts[task.Type] == nil {
				counts[task.Type] = make(map[types.TaskStatus]int)
			}
			counts[task.Type][task.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Delete removes a row. Only terminal or paused rows may be deleted.
func (r *Registry) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		task, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if !task.Status.Terminal() && task.Status != types.TaskStatusPaused {
			return fmt.Errorf("cannot delete task in status %s", task.Status)
		}
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

// Pause performs the user-initiated pause transition: status paused,
// last_message rewritten to a human string, run_id cleared so the
// owning worker exits at its next ownership check.
func (r *Registry) Pause(id, message string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		task, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.Status != types.TaskStatusRunning {
			return fmt.Errorf("cannot pause task in status %s", task.Status)
		}
		result := types.ParseTaskResult(task.Result)
		if result.Progress != nil {
			result.Progress.RunID = ""
			result.Progress.LastMessage = message
			encoded, err := result.Encode()
			if err != nil {
				return err
			}
			task.Result = encoded
		} else {
			task.Result = message
		}
		task.Status = types.TaskStatusPaused
		return putTask(tx, task)
	})
}

// Resume performs the user-initiated resume transition on a paused
// snatch row: a fresh run id is minted, status returns to running, and
// the progress document to re-dispatch is returned.
func (r *Registry) Resume(id string) (*types.SnatchProgress, error) {
	var progress *types.SnatchProgress
	err := r.db.Update(func(tx *bolt.Tx) error {
		task, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.Status != types.TaskStatusPaused {
			return fmt.Errorf("cannot resume task in status %s", task.Status)
		}
		result := types.ParseTaskResult(task.Result)
		if result.Progress == nil {
			return fmt.Errorf("task %s has no resumable progress", id)
		}
		result.Progress.RunID = uuid.New().String()
		result.Progress.LastMessage = "task resumed"
		encoded, err := result.Encode()
		if err != nil {
			return err
		}
		task.Result = encoded
		task.Status = types.TaskStatusRunning
		if err := putTask(tx, task); err != nil {
			return err
		}
		progress = result.Progress
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// Row returns a narrow handle scoped to one task. Engines hold a Row,
// never the registry itself.
func (r *Registry) Row(id string) *Row {
	return &Row{registry: r, id: id}
}

func getTask(tx *bolt.Tx, id string) (*types.Task, error) {
	data := tx.Bucket(bucketTasks).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var task types.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func putTask(tx *bolt.Tx, task *types.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTasks).Put([]byte(task.ID), data)
}
