package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmissionRejected is the sentinel wrapped by every AdmissionError.
	ErrAdmissionRejected = errors.New("admission rejected")
	// ErrOutOfRange reports a READ/WRITE address outside the process window.
	ErrOutOfRange = errors.New("memory access violation")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrWorkerJoin is returned when core workers fail to stop in time.
	// The scheduler refuses to restart afterwards.
	ErrWorkerJoin = errors.New("core workers did not stop")
)

// AdmissionError explains why a process was not admitted.
type AdmissionError struct {
	PID    int
	Name   string
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected for %s (pid %d): %s", e.Name, e.PID, e.Reason)
}

func (e *AdmissionError) Unwrap() error { return ErrAdmissionRejected }
