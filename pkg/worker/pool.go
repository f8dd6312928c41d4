package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensnatch/snatchd/pkg/action"
	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/registry"
	"github.com/opensnatch/snatchd/pkg/snatch"
	"github.com/opensnatch/snatchd/pkg/types"
)

const defaultQueueDepth = 256

// DefaultExecutors is the executor count used when the flag is unset.
const DefaultExecutors = 8

// job is one queued unit of work. run blocks until the task reaches a
// terminal row state or the pool shuts down.
type job struct {
	taskID string
	alias  string
	run    func(ctx context.Context) error
}

// Pool dispatches queued tasks to a fixed set of executor goroutines.
// Shutdown cancels the shared context; engines exit at their next
// suspension point and interrupted snatch rows stay running so the
// recovery pass re-dispatches them on the next start.
type Pool struct {
	registry *registry.Registry
	profiles registry.ProfileGetter
	engine   *snatch.Engine
	actions  *action.Executor
	broker   *events.Broker

	queue  chan job
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool with size executors.
func NewPool(size int, reg *registry.Registry, profiles registry.ProfileGetter, engine *snatch.Engine, actions *action.Executor, broker *events.Broker) *Pool {
	if size <= 0 {
		size = DefaultExecutors
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		registry: reg,
		profiles: profiles,
		engine:   engine,
		actions:  actions,
		broker:   broker,
		queue:    make(chan job, defaultQueueDepth),
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.executorLoop(i)
	}
	return p
}

// Start runs the recovery pass and re-dispatches interrupted snatches.
// Call once after construction.
func (p *Pool) Start() error {
	recovered, err := p.registry.Recover(p.profiles)
	if err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}
	for _, rec := range recovered {
		if err := p.EnqueueSnatchResume(rec.TaskID, rec.Alias, rec.Profile, rec.Progress); err != nil {
			log.WithComponent("worker").Error().Err(err).Str("task_id", rec.TaskID).
				Msg("failed to re-enqueue recovered snatch")
		}
	}
	return nil
}

// Stop shuts the pool down and waits for executors to exit.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.cancel()
	p.wg.Wait()
}

// EnqueueSnatch queues a fresh snatch for a pending task row.
func (p *Pool) EnqueueSnatch(taskID, alias string, prof *types.Profile, details types.SnatchDetails) error {
	return p.enqueue(taskID, alias, func(ctx context.Context) error {
		return p.engine.Run(ctx, p.registry.Row(taskID), snatch.Job{
			Alias:     alias,
			Profile:   prof,
			Details:   details,
			OnAttempt: p.attemptPublisher(taskID, alias),
		})
	})
}

// EnqueueSnatchResume queues a snatch that continues from persisted
// progress: a resume or a crash-recovered row.
func (p *Pool) EnqueueSnatchResume(taskID, alias string, prof *types.Profile, progress *types.SnatchProgress) error {
	return p.enqueue(taskID, alias, func(ctx context.Context) error {
		return p.engine.Run(ctx, p.registry.Row(taskID), snatch.Job{
			Alias:     alias,
			Profile:   prof,
			Details:   progress.Details,
			Progress:  progress,
			OnAttempt: p.attemptPublisher(taskID, alias),
		})
	})
}

// attemptPublisher mirrors each launch try onto the broker so the
// metrics collector can count attempts per profile.
func (p *Pool) attemptPublisher(taskID, alias string) func(int) {
	return func(attempt int) {
		p.broker.Publish(&events.Event{
			Type:    events.EventSnatchAttempt,
			TaskID:  taskID,
			Alias:   alias,
			Message: fmt.Sprintf("attempt %d", attempt),
		})
	}
}

// EnqueueAction queues an instance action.
func (p *Pool) EnqueueAction(taskID string, req action.Request) error {
	return p.enqueue(taskID, req.Alias, func(ctx context.Context) error {
		return p.actions.Run(ctx, p.registry.Row(taskID), req)
	})
}

// EnqueueCreate queues a one-shot multi-instance launch.
func (p *Pool) EnqueueCreate(taskID, alias string, prof *types.Profile, details types.SnatchDetails) error {
	return p.enqueue(taskID, alias, func(ctx context.Context) error {
		return p.engine.RunCreate(ctx, p.registry.Row(taskID), snatch.Job{
			Alias:   alias,
			Profile: prof,
			Details: details,
		})
	})
}

func (p *Pool) enqueue(taskID, alias string, run func(ctx context.Context) error) error {
	j := job{taskID: taskID, alias: alias, run: run}
	select {
	case p.queue <- j:
		p.broker.Publish(&events.Event{
			Type:   events.EventTaskCreated,
			TaskID: taskID,
			Alias:  alias,
		})
		return nil
	case <-p.stopCh:
		return fmt.Errorf("worker pool is shutting down")
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (p *Pool) executorLoop(id int) {
	defer p.wg.Done()
	logger := log.WithComponent("worker").With().Int("executor", id).Logger()

	for {
		select {
		case j := <-p.queue:
			logger.Debug().Str("task_id", j.taskID).Msg("task picked up")
			p.broker.Publish(&events.Event{
				Type:   events.EventTaskStarted,
				TaskID: j.taskID,
				Alias:  j.alias,
			})
			if err := j.run(p.ctx); err != nil {
				if p.ctx.Err() != nil {
					logger.Info().Str("task_id", j.taskID).Msg("task interrupted by shutdown")
					return
				}
				logger.Error().Err(err).Str("task_id", j.taskID).Msg("task run failed")
			}
			p.publishOutcome(j)
		case <-p.stopCh:
			return
		}
	}
}

// publishOutcome reloads the row and mirrors its terminal state onto
// the broker; rows left running (shutdown, pause) publish nothing.
func (p *Pool) publishOutcome(j job) {
	task, err := p.registry.Get(j.taskID)
	if err != nil {
		return
	}
	event := events.Event{TaskID: j.taskID, Alias: j.alias, Message: task.Result}
	switch task.Status {
	case types.TaskStatusSuccess:
		event.Type = events.EventTaskSucceeded
		p.broker.Publish(&event)
		if task.Type == types.TaskTypeSnatch || task.Type == types.TaskTypeCreate {
			launched := event
			launched.Type = events.EventInstanceLaunched
			p.broker.Publish(&launched)
		}
	case types.TaskStatusFailure:
		event.Type = events.EventTaskFailed
		p.broker.Publish(&event)
	}
}
