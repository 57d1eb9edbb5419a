package scheduler

import "errors"

// ErrEmptyGoal is returned when goal.members is empty.
var ErrEmptyGoal = errors.New("scheduler: goal has no members")
