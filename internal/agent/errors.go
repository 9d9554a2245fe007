package agent

import "errors"

var (
	// ErrNoPlan is returned when the Planner exhausts its attempts.
	ErrNoPlan = errors.New("no plan produced")

	// ErrNoTask is returned when the Initiator exhausts its attempts.
	ErrNoTask = errors.New("no task produced")

	// ErrNoReply is wrapped when a structured exchange exhausts its attempts.
	ErrNoReply = errors.New("no usable reply")
)
