// Package inject implements the controller-side remote DLL injection
// protocol: open the target, write the DLL path into its
// address space, resolve LoadLibraryW (same-bitness via local GetProcAddress,
// cross-bitness via manual PE export parsing over ReadProcessMemory), and
// run it via CreateRemoteThread. The OS-specific calls live in
// inject_windows.go; this file holds the parts that don't need Windows to
// compile or test: the failure taxonomy and the PE export-directory walk,
// which only needs an abstract remote-memory reader.
package inject

import "fmt"

// Failure is the injection failure taxonomy, each variant
// naming the step that failed so callers (and logs) can distinguish
// "target not found" from "thread never ran".
type Failure int

const (
	FailureOpenProcess Failure = iota
	FailureBitnessCheck
	FailureAllocatePath
	FailureWritePath
	FailureResolveLoadLibrary
	FailureCreateRemoteThread
	FailureWaitTimeout
	FailureLoadLibraryReturnedNull
)

func (f Failure) String() string {
	switch f {
	case FailureOpenProcess:
		return "open_process"
	case FailureBitnessCheck:
		return "bitness_check"
	case FailureAllocatePath:
		return "allocate_path"
	case FailureWritePath:
		return "write_path"
	case FailureResolveLoadLibrary:
		return "resolve_load_library"
	case FailureCreateRemoteThread:
		return "create_remote_thread"
	case FailureWaitTimeout:
		return "wait_timeout"
	case FailureLoadLibraryReturnedNull:
		return "load_library_returned_null"
	default:
		return "unknown"
	}
}

// Error wraps a Failure with the underlying OS error, if any.
type Error struct {
	Failure Failure
	PID     uint32
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inject: pid %d: %s: %v", e.PID, e.Failure, e.Err)
	}
	return fmt.Sprintf("inject: pid %d: %s", e.PID, e.Failure)
}

func (e *Error) Unwrap() error { return e.Err }

// remoteReader abstracts ReadProcessMemory so the PE export walk below can
// be exercised against an in-memory fake instead of a live process.
type remoteReader func(addr uintptr, size int) ([]byte, error)

func (r remoteReader) u32(addr uintptr) (uint32, error) {
	b, err := r(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// findExportRemote walks a remote module's PE export directory looking for
// exportName, returning its absolute remote address. This mirrors
// the cross-bitness LoadLibraryW resolver, generalized to any export name
// since the walk logic doesn't care which symbol it's hunting.
//
// moduleBase is the remote base address of the module (e.g. kernel32.dll in
// the target's own address space, found via a toolhelp snapshot).
func findExportRemote(read remoteReader, moduleBase uintptr, exportName string) (uintptr, error) {
	e_lfanew, err := read.u32(moduleBase + 0x3C)
	if err != nil {
		return 0, fmt.Errorf("inject: read e_lfanew: %w", err)
	}
	ntHeaders := moduleBase + uintptr(e_lfanew)

	exportDirRVA, err := read.u32(ntHeaders + 0x78)
	if err != nil {
		return 0, fmt.Errorf("inject: read export dir RVA: %w", err)
	}
	if exportDirRVA == 0 {
		return 0, fmt.Errorf("inject: module has no export directory")
	}
	exportDir := moduleBase + uintptr(exportDirRVA)

	numNames, err := read.u32(exportDir + 0x18)
	if err != nil {
		return 0, fmt.Errorf("inject: read NumberOfNames: %w", err)
	}
	addrFunctionsRVA, err := read.u32(exportDir + 0x1C)
	if err != nil {
		return 0, fmt.Errorf("inject: read AddressOfFunctions: %w", err)
	}
	addrNamesRVA, err := read.u32(exportDir + 0x20)
	if err != nil {
		return 0, fmt.Errorf("inject: read AddressOfNames: %w", err)
	}
	addrOrdinalsRVA, err := read.u32(exportDir + 0x24)
	if err != nil {
		return 0, fmt.Errorf("inject: read AddressOfNameOrdinals: %w", err)
	}

	addrFunctions := moduleBase + uintptr(addrFunctionsRVA)
	addrNames := moduleBase + uintptr(addrNamesRVA)
	addrOrdinals := moduleBase + uintptr(addrOrdinalsRVA)

	for i := uint32(0); i < numNames; i++ {
		nameRVA, err := read.u32(addrNames + uintptr(i*4))
		if err != nil {
			return 0, fmt.Errorf("inject: read name RVA[%d]: %w", i, err)
		}
		name, err := readCString(read, moduleBase+uintptr(nameRVA), len(exportName)+1)
		if err != nil {
			continue
		}
		if name != exportName {
			continue
		}

		ordU32, err := read.u32(addrOrdinals + uintptr(i*2))
		if err != nil {
			return 0, fmt.Errorf("inject: read ordinal[%d]: %w", i, err)
		}
		ordinal := uint16(ordU32 & 0xFFFF)

		funcRVA, err := read.u32(addrFunctions + uintptr(ordinal)*4)
		if err != nil {
			return 0, fmt.Errorf("inject: read function RVA[%d]: %w", ordinal, err)
		}
		return moduleBase + uintptr(funcRVA), nil
	}

	return 0, fmt.Errorf("inject: export %q not found", exportName)
}

// readCString reads up to maxLen bytes at addr and returns the string up to
// (not including) the first NUL. It reads exactly maxLen bytes at a time
// because the abstract reader has no notion of "read until fault".
func readCString(read remoteReader, addr uintptr, maxLen int) (string, error) {
	b, err := read(addr, maxLen)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}
