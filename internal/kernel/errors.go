package kernel

import "errors"

// Sentinel errors for the boundary between internal kernel-invariant
// violations (which panic) and ordinary syscall failures
// (which return a negative status, never a Go error, to user code).
var (
	ErrNoSuchProcess = errors.New("kernel: no such process")
	ErrNoSuchChild   = errors.New("kernel: no such child process")
	ErrBadFD         = errors.New("kernel: bad file descriptor")
	ErrNotDir        = errors.New("kernel: not a directory")
	ErrInvalidArg    = errors.New("kernel: invalid argument")
)
