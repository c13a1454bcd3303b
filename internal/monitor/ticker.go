package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Ticker paces a loop: Wait blocks until the next cycle is due.
type Ticker interface {
	Wait(ctx context.Context) error
}

// CronTicker fires on a cron schedule: "@every 5m", "@hourly" or a
// five-field expression.
type CronTicker struct {
	schedule cron.Schedule
	now      func() time.Time
}

func NewCronTicker(spec string) (*CronTicker, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &CronTicker{schedule: schedule, now: time.Now}, nil
}

// Next returns the next activation after t.
func (c *CronTicker) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *CronTicker) Wait(ctx context.Context) error {
	now := c.now()
	timer := time.NewTimer(c.schedule.Next(now).Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
