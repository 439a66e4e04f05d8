package kernel

import "golang.org/x/sys/unix"

// EncodeExitStatus packs exitCode into the same wait(2) status layout
// real Unix wait4 uses: low byte 0 means "exited normally", and the exit
// code lives in bits 8-15, i.e. (exit_code & 0xff) << 8. The shift is done
// here; the result is typed as golang.org/x/sys/unix.WaitStatus so callers
// can decode it with its accessors.
func EncodeExitStatus(exitCode int) unix.WaitStatus {
	return unix.WaitStatus(uint32(exitCode&0xff) << 8)
}
