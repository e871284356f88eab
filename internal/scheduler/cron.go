// Package scheduler runs the office's periodic jobs. Every tick it takes a
// file lock so only one process dispatches, then starts each job whose cron
// schedule falls in the current minute, subject to per-category caps.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a standard 5-field cron expression or a descriptor
// such as "@daily". Interval descriptors ("@every 1h") are rejected since
// jobs are matched against minute boundaries.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@every") {
		return nil, fmt.Errorf("cron: %q: interval schedules are not supported", expr)
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: %q: %w", expr, err)
	}
	return sched, nil
}

// Due reports whether sched fires in the minute containing now.
func Due(sched cron.Schedule, now time.Time) bool {
	minute := now.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}
