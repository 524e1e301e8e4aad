//go:build windows

package shm

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// These mirror WinNT.h constants directly rather than relying on whichever
// subset golang.org/x/sys/windows happens to export under these names, the
// same "independent of OS SDK headers" discipline the PE-parsing path elsewhere calls for, on
// the PE-parsing path.
const (
	pageReadWrite    = 0x04
	fileMapAllAccess = 0xF001F
)

type windowsMapping struct {
	handle windows.Handle
	addr   uintptr
	size   int
}

func (m *windowsMapping) View() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.size)
}

func (m *windowsMapping) Close() error {
	if m.addr != 0 {
		_ = windows.UnmapViewOfFile(m.addr)
		m.addr = 0
	}
	if m.handle != 0 {
		err := windows.CloseHandle(m.handle)
		m.handle = 0
		return err
	}
	return nil
}

// Create makes a new named mapping of totalSize bytes backed by the system
// page file, the agent-side half of the contract. The name must already be
// in the `Local\...` form produced by Name.
func Create(name string, totalSize uint32) (Mapping, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, &ErrMapFailed{Op: "UTF16PtrFromString", Err: err}
	}

	handle, err := windows.CreateFileMapping(
		windows.InvalidHandle,
		nil,
		pageReadWrite,
		0,
		totalSize,
		namePtr,
	)
	if err != nil {
		return nil, &ErrMapFailed{Op: "CreateFileMapping", Err: err}
	}

	addr, err := windows.MapViewOfFile(handle, fileMapAllAccess, 0, 0, uintptr(totalSize))
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, &ErrMapFailed{Op: "MapViewOfFile", Err: err}
	}

	m := &windowsMapping{handle: handle, addr: addr, size: int(totalSize)}
	buf := m.View()
	for i := range buf {
		buf[i] = 0
	}
	return m, nil
}

// Open opens a mapping previously created by Create, the controller-side
// half of the contract. The caller is responsible for validating the
// header magic after Open succeeds (ValidateMagic in ringproto).
func Open(name string) (Mapping, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, &ErrMapFailed{Op: "UTF16PtrFromString", Err: err}
	}

	handle, err := windows.OpenFileMapping(fileMapAllAccess, false, namePtr)
	if err != nil {
		return nil, &ErrMapFailed{Op: "OpenFileMapping", Err: err}
	}

	// We don't know capacity yet (it lives in the header), so map enough to
	// read the header first, then remap fully once capacity is known.
	headerView, err := windows.MapViewOfFile(handle, fileMapAllAccess, 0, 0, uintptr(TotalSize(0)))
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, &ErrMapFailed{Op: "MapViewOfFile(header)", Err: err}
	}
	headerBuf := unsafe.Slice((*byte)(unsafe.Pointer(headerView)), TotalSize(0))
	capacity := loadCapacity(headerBuf)
	_ = windows.UnmapViewOfFile(headerView)

	full := TotalSize(capacity)
	addr, err := windows.MapViewOfFile(handle, fileMapAllAccess, 0, 0, uintptr(full))
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, &ErrMapFailed{Op: "MapViewOfFile(full)", Err: err}
	}

	return &windowsMapping{handle: handle, addr: addr, size: int(full)}, nil
}

// loadCapacity reads the capacity field (offset 12) without importing
// ringproto, to keep shm dependency-free of the wire-format package.
func loadCapacity(buf []byte) uint32 {
	if len(buf) < 16 {
		return 0
	}
	return uint32(buf[12]) | uint32(buf[13])<<8 | uint32(buf[14])<<16 | uint32(buf[15])<<24
}
