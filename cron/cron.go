// Package cron provides in-process periodic task submission.
//
// An [Entry] pairs a cron expression with a registered task and the
// kwargs to submit it with. The [Scheduler] evaluates due entries on
// every tick, submits the corresponding task through the pipeline, and
// advances the entry's next run time. Submitted kwargs go through the
// same validation as any other submission.
//
// Schedules use standard 5-field cron expressions ("0 9 * * 1-5") and
// descriptors like "@hourly" or "@every 30s".
package cron

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Entry represents a periodic task submission.
type Entry struct {
	ID        id.CronID      `json:"id"`
	Name      string         `json:"name"`
	Schedule  string         `json:"schedule"`
	Task      string         `json:"task"`
	Kwargs    courier.Kwargs `json:"kwargs,omitempty"`
	Enabled   bool           `json:"enabled"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt *time.Time     `json:"next_run_at,omitempty"`

	// sched is the parsed form of Schedule, set at registration.
	sched cronlib.Schedule
}
