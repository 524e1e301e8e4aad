// Package shm provides the named cross-process shared-memory mapping used
// to carry the capture ring between the agent (writer) and the controller
// (reader). The OS-specific mapping calls live in shm_windows.go; this file
// holds the pieces that don't need an OS to compile or test (the naming
// scheme and the common error types).
package shm

import "fmt"

// Name returns the mapping name for a given pid, using the Local\ session
// namespace so creation never requires SeCreateGlobalPrivilege (see
// the ring naming rule).
func Name(prefix string, pid uint32) string {
	return fmt.Sprintf(`Local\%s_%d`, prefix, pid)
}

// TotalSize returns the full mapping size (header + data area) for a given
// ring data capacity.
func TotalSize(capacity uint32) uint32 {
	const headerSize = 24 // ringproto.HeaderSize, duplicated so shm does not import ringproto
	return headerSize + capacity
}

// Mapping is a live view onto a shared-memory region: the owner (agent, as
// creator, or controller, as opener) can read/write through View. Close
// unmaps and releases OS handles; Close must be safe to call more than
// once.
type Mapping interface {
	View() []byte
	Close() error
}

// ErrMapFailed wraps any OS-level failure to create or open a mapping.
type ErrMapFailed struct {
	Op  string
	Err error
}

func (e *ErrMapFailed) Error() string {
	return fmt.Sprintf("shm: %s failed: %v", e.Op, e.Err)
}

func (e *ErrMapFailed) Unwrap() error { return e.Err }
