package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/robfig/cron/v3"
)

type Collector interface {
	Collect(ctx context.Context, cfg *feed.Config) (*feed.Feed, error)
}

type TaskState string

const (
	TaskActive TaskState = "active"
	TaskPaused TaskState = "paused"
)

// TaskInfo describes one scheduled feed. Next is zero for paused tasks.
type TaskInfo struct {
	FeedID string    `json:"feedId"`
	State  TaskState `json:"state"`
	Spec   string    `json:"schedule"`
	Next   time.Time `json:"nextRun,omitempty"`
}

type task struct {
	config  *feed.Config
	spec    string
	entryID cron.EntryID
	active  bool
}

// Scheduler owns one recurring collect task per feed.
type Scheduler struct {
	cron       *cron.Cron
	collector  Collector
	runTimeout time.Duration
	tasks      map[string]*task
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(collector Collector, runTimeout time.Duration) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}

	logger := cronLogger{}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(logger)),
			cron.WithLogger(logger),
		),
		collector:  collector,
		runTimeout: runTimeout,
		tasks:      make(map[string]*task),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Debug("Scheduler started", "tasks", s.GetScheduledTaskCount())
}

// Stop halts all ticks, cancels running collects and waits for them to return.
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	s.cancel()
	<-cronCtx.Done()
	s.wg.Wait()
}

// AddFeedToSchedule registers a recurring collect for cfg. A disabled feed is
// registered paused. An enabled feed is collected once right away.
func (s *Scheduler) AddFeedToSchedule(cfg *feed.Config) error {
	spec, err := CronSpec(cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid poll interval for %s: %w", cfg.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, cfg.ID)
	}

	t := &task{config: cfg, spec: spec}
	if cfg.Enabled {
		if err := s.activate(t); err != nil {
			return err
		}
	}
	s.tasks[cfg.ID] = t

	slog.Info("Feed scheduled", "feed", cfg.ID, "schedule", spec, "enabled", cfg.Enabled)
	return nil
}

// StartTask resumes a paused task and collects it once right away.
func (s *Scheduler) StartTask(feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[feedID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, feedID)
	}
	if t.active {
		return nil
	}

	return s.activate(t)
}

// StopTask pauses a task. A collect that is already running is not cancelled.
func (s *Scheduler) StopTask(feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[feedID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, feedID)
	}

	s.deactivate(t)
	return nil
}

func (s *Scheduler) DeleteScheduledTask(feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[feedID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, feedID)
	}

	s.deactivate(t)
	delete(s.tasks, feedID)

	slog.Info("Feed unscheduled", "feed", feedID)
	return nil
}

func (s *Scheduler) GetScheduledTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) TaskState(feedID string) (TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[feedID]
	if !ok {
		return "", false
	}
	if t.active {
		return TaskActive, true
	}
	return TaskPaused, true
}

// Tasks returns every scheduled feed ordered by id.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for id, t := range s.tasks {
		info := TaskInfo{FeedID: id, State: TaskPaused, Spec: t.spec}
		if t.active {
			info.State = TaskActive
			entry := s.cron.Entry(t.entryID)
			info.Next = entry.Next
			// not computed until the cron is started
			if info.Next.IsZero() && entry.Schedule != nil {
				info.Next = entry.Schedule.Next(time.Now())
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].FeedID < infos[j].FeedID })
	return infos
}

// ScheduleFunc registers a maintenance job that is not tied to a feed.
func (s *Scheduler) ScheduleFunc(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			slog.Error("Scheduled job failed", "job", name, "error", err)
			return
		}
		slog.Debug("Scheduled job completed", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// activate must be called with s.mu held.
func (s *Scheduler) activate(t *task) error {
	cfg := t.config
	entryID, err := s.cron.AddFunc(t.spec, func() { s.run(cfg) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", cfg.ID, err)
	}

	t.entryID = entryID
	t.active = true
	s.runAsync(cfg)
	return nil
}

// deactivate must be called with s.mu held.
func (s *Scheduler) deactivate(t *task) {
	if !t.active {
		return
	}
	s.cron.Remove(t.entryID)
	t.active = false
	t.entryID = 0
}

func (s *Scheduler) runAsync(cfg *feed.Config) {
	if s.ctx.Err() != nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(cfg)
	}()
}

// run performs one collect. Failures are logged and panics recovered.
func (s *Scheduler) run(cfg *feed.Config) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Collect panicked", "feed", cfg.ID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	if _, err := s.collector.Collect(ctx, cfg); err != nil {
		slog.Warn("Scheduled collect failed", "feed", cfg.ID, "error", err)
	}
}
