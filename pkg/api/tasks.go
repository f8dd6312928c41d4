package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/registry"
)

func (s *Server) handleRunningSnatches(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.registry.ListRunningSnatch()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCompletedSnatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	tasks, err := s.registry.ListCompletedSnatch(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": task.Status,
		"result": task.Result,
		"type":   task.Type,
	})
}

// handleStopTask pauses a running snatch: run_id cleared so the owning
// worker exits at its next ownership check.
func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Pause(id, "task stopped by user"); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.publish(&events.Event{Type: events.EventTaskPaused, TaskID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleResumeTasks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskIDs []string `json:"task_ids"`
	}
	if err := decodeJSON(r, &body); err != nil || len(body.TaskIDs) == 0 {
		writeError(w, http.StatusBadRequest, "task_ids is required")
		return
	}

	resumed := make([]string, 0, len(body.TaskIDs))
	failed := make(map[string]string)
	for _, id := range body.TaskIDs {
		task, err := s.registry.Get(id)
		if err != nil {
			failed[id] = "task not found"
			continue
		}
		prof, err := s.profiles.Get(task.AccountAlias)
		if err != nil {
			failed[id] = "profile " + task.AccountAlias + " no longer exists"
			continue
		}
		progress, err := s.registry.Resume(id)
		if err != nil {
			failed[id] = err.Error()
			continue
		}
		if err := s.pool.EnqueueSnatchResume(id, task.AccountAlias, prof, progress); err != nil {
			failed[id] = err.Error()
			if perr := s.registry.Pause(id, "resume failed: "+err.Error()); perr != nil {
				log.WithComponent("api").Error().Err(perr).Str("task_id", id).Msg("failed to re-pause task")
			}
			continue
		}
		s.publish(&events.Event{Type: events.EventTaskResumed, TaskID: id, Alias: task.AccountAlias})
		resumed = append(resumed, id)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resumed": resumed,
		"failed":  failed,
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Delete(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.publish(&events.Event{Type: events.EventTaskDeleted, TaskID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
