package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/profileqa/internal/observability"
)

// DefaultSummaryCron sends the summary report every day at 18:00.
const DefaultSummaryCron = "0 18 * * *"

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Scheduler periodically sends a report through a Notifier.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	notifier Notifier
	report   func() string
	timeout  time.Duration
	logger   *observability.Logger
}

// NewScheduler parses spec and prepares the job. An empty or "off" spec
// returns a disabled scheduler whose Start and Stop do nothing.
func NewScheduler(spec string, n Notifier, report func() string, logger *observability.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Scheduler{notifier: n, report: report, timeout: 30 * time.Second, logger: logger}
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "off") {
		return s, nil
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid summary cron %q: %w", spec, err)
	}
	s.schedule = sched
	s.cron = cron.New(cron.WithParser(cronParser))
	s.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunNow(ctx)
	}))
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Scheduler) Enabled() bool {
	return s.cron != nil
}

// Next returns the next run time after now, or the zero time when disabled.
func (s *Scheduler) Next(now time.Time) time.Time {
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(now)
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	if s.cron != nil {
		s.cron.Start()
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunNow sends the report immediately.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	ok := s.notifier.Notify(ctx, Event{
		Title:    "Resumen de actividad",
		Message:  s.report(),
		Priority: PriorityLow,
		Type:     "summary",
	})
	s.logger.Info(ctx, "summary report sent", "delivered", ok)
	return ok
}
