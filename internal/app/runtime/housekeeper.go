package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campusmess/messhall/internal/app/metrics"
	"github.com/campusmess/messhall/pkg/logger"
)

// Job is one housekeeping task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Housekeeper runs maintenance jobs on a cron schedule. It implements
// system.Service.
type Housekeeper struct {
	schedule string
	log      *logger.Logger

	mu     sync.Mutex
	jobs   []Job
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewHousekeeper validates schedule, which accepts five-field cron
// expressions and descriptors such as "@every 5m".
func NewHousekeeper(schedule string, log *logger.Logger) (*Housekeeper, error) {
	if log == nil {
		log = logger.NewDefault("housekeeping")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("housekeeping schedule %q: %w", schedule, err)
	}
	return &Housekeeper{schedule: schedule, log: log}, nil
}

// Add registers a job. Jobs run in registration order.
func (h *Housekeeper) Add(name string, run func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, Job{Name: name, Run: run})
}

// Jobs lists registered job names.
func (h *Housekeeper) Jobs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.jobs))
	for i, j := range h.jobs {
		names[i] = j.Name
	}
	return names
}

// RunOnce runs every job and returns how many failed. A failing job does not
// stop the others.
func (h *Housekeeper) RunOnce(ctx context.Context) int {
	h.mu.Lock()
	jobs := append([]Job(nil), h.jobs...)
	h.mu.Unlock()

	failed := 0
	for _, j := range jobs {
		start := time.Now()
		err := j.Run(ctx)
		metrics.RecordHousekeeping(j.Name, time.Since(start), err == nil)
		if err != nil {
			failed++
			h.log.WithError(err).WithField("job", j.Name).Warn("housekeeping job failed")
		}
	}
	return failed
}

func (h *Housekeeper) Name() string { return "housekeeping" }

func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(h.schedule, func() { h.RunOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	c.Start()
	h.cron, h.cancel = c, cancel
	h.log.WithField("schedule", h.schedule).Info("housekeeping scheduled")
	return nil
}

// Stop waits for a running pass to finish or for ctx to expire.
func (h *Housekeeper) Stop(ctx context.Context) error {
	h.mu.Lock()
	c, cancel := h.cron, h.cancel
	h.cron, h.cancel = nil, nil
	h.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
