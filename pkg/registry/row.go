package registry

import (
	"errors"

	"github.com/opensnatch/snatchd/pkg/types"
)

// Row is the narrow per-task handle handed to engines. It exposes the
// row's reads and transitions without giving the engine the registry,
// so the dependency points one way only.
type Row struct {
	registry *Registry
	id       string
}

// ID returns the task id the handle is scoped to.
func (w *Row) ID() string {
	return w.id
}

// Reload re-reads the row. A missing row is reported via the second
// return value rather than an error so ownership checks can distinguish
// deletion from storage failure.
func (w *Row) Reload() (*types.Task, bool, error) {
	task, err := w.registry.Get(w.id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return task, true, nil
}

// UpdateProgress sets the result field without touching status.
func (w *Row) UpdateProgress(result string) error {
	return w.registry.UpdateProgress(w.id, result)
}

// SetRunning transitions the row to running.
func (w *Row) SetRunning(result string) error {
	return w.registry.SetRunning(w.id, result)
}

// SetSuccess transitions the row to success.
func (w *Row) SetSuccess(result string) error {
	return w.registry.SetSuccess(w.id, result)
}

// SetFailure transitions the row to failure.
func (w *Row) SetFailure(result string) error {
	return w.registry.SetFailure(w.id, result)
}
