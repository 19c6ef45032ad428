package scheduler

import (
	"fmt"

	"github.com/lysyi3m/rss-archive/app/feed"
)

// CronSpec converts a poll interval into a cron expression. Fields below the
// interval's unit are pinned to their first value, so "2 hours" fires at
// minute 0 of every second hour.
func CronSpec(d feed.Duration) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	var max int
	switch d.Unit {
	case feed.Seconds, feed.Minutes:
		max = 59
	case feed.Hours:
		max = 23
	case feed.Days:
		max = 31
	case feed.Months:
		max = 12
	}
	if d.Value > max {
		return "", fmt.Errorf("interval %s out of range: at most %d %s", d, max, d.Unit)
	}

	n := d.Value
	switch d.Unit {
	case feed.Seconds:
		return fmt.Sprintf("*/%d * * * * *", n), nil
	case feed.Minutes:
		return fmt.Sprintf("*/%d * * * *", n), nil
	case feed.Hours:
		return fmt.Sprintf("0 */%d * * *", n), nil
	case feed.Days:
		return fmt.Sprintf("0 0 */%d * *", n), nil
	default:
		return fmt.Sprintf("0 0 1 */%d *", n), nil
	}
}
