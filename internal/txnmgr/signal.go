package txnmgr

import "syscall"

// syscallSignal0 returns the zero-signal used to probe whether a pid is
// still alive without actually signaling it.
func syscallSignal0() syscall.Signal { return syscall.Signal(0) }
