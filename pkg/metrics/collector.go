package metrics

import (
	"time"

	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/types"
)

// TaskCounter is the slice of the task registry the collector polls.
type TaskCounter interface {
	CountByStatus() (map[types.TaskType]map[types.TaskStatus]int, error)
}

// Collector keeps the task gauges current by polling the registry and
// bumps the counters from broker events.
type Collector struct {
	tasks  TaskCounter
	broker *events.Broker
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(tasks TaskCounter, broker *events.Broker) *Collector {
	return &Collector{
		tasks:  tasks,
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	sub := c.broker.Subscribe()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		// Collect immediately on start
		c.collect()

		for {
			select {
			case event, ok := <-sub:
				if !ok {
					return
				}
				c.consume(event)
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				c.broker.Unsubscribe(sub)
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts, err := c.tasks.CountByStatus()
	if err != nil {
		log.WithComponent("metrics").Warn().Err(err).Msg("failed to count tasks")
		return
	}
	TasksTotal.Reset()
	for taskType, byStatus := range counts {
		for status, n := range byStatus {
			TasksTotal.WithLabelValues(string(taskType), string(status)).Set(float64(n))
		}
	}
}

func (c *Collector) consume(event *events.Event) {
	switch event.Type {
	case events.EventSnatchAttempt:
		SnatchAttemptsTotal.WithLabelValues(event.Alias).Inc()
	case events.EventInstanceLaunched, events.EventTaskSucceeded:
		if event.Type == events.EventInstanceLaunched {
			SnatchSuccessTotal.WithLabelValues(event.Alias).Inc()
		}
		c.collect()
	case events.EventTaskFailed:
		TasksFailedTotal.Inc()
		c.collect()
	case events.EventTaskPaused, events.EventTaskResumed, events.EventTaskDeleted:
		c.collect()
	}
}
