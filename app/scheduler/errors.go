package scheduler

import "errors"

var (
	ErrDuplicateSchedule = errors.New("feed is already scheduled")
	ErrUnknownSchedule   = errors.New("feed is not scheduled")
)
