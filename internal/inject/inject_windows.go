//go:build windows

package inject

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modAdvapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procOpenProcess             = modKernel32.NewProc("OpenProcess")
	procIsWow64Process          = modKernel32.NewProc("IsWow64Process")
	procVirtualAllocEx          = modKernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx           = modKernel32.NewProc("VirtualFreeEx")
	procWriteProcessMemory      = modKernel32.NewProc("WriteProcessMemory")
	procReadProcessMemory       = modKernel32.NewProc("ReadProcessMemory")
	procCreateRemoteThread      = modKernel32.NewProc("CreateRemoteThread")
	procWaitForSingleObject     = modKernel32.NewProc("WaitForSingleObject")
	procGetExitCodeThread       = modKernel32.NewProc("GetExitCodeThread")
	procCreateToolhelp32Snapshot = modKernel32.NewProc("CreateToolhelp32Snapshot")
	procModule32FirstW          = modKernel32.NewProc("Module32FirstW")
	procModule32NextW           = modKernel32.NewProc("Module32NextW")

	procOpenProcessToken       = modAdvapi32.NewProc("OpenProcessToken")
	procLookupPrivilegeValueW  = modAdvapi32.NewProc("LookupPrivilegeValueW")
	procAdjustTokenPrivileges  = modAdvapi32.NewProc("AdjustTokenPrivileges")
)

const (
	processCreateThread      = 0x0002
	processQueryInformation  = 0x0400
	processVMOperation       = 0x0008
	processVMWrite           = 0x0020
	processVMRead            = 0x0010

	memCommit  = 0x1000
	memReserve = 0x2000
	memRelease = 0x8000

	pageReadWrite = 0x04

	th32csSnapModule  = 0x00000008
	th32csSnapModule32 = 0x00000010

	tokenAdjustPrivileges = 0x0020
	tokenQuery            = 0x0008
	sePrivilegeEnabled    = 0x00000002
)

// moduleEntry32 mirrors MODULEENTRY32W's fields we need; the struct has a
// fixed 32-bit-aligned layout independent of target bitness because it
// always describes a 32-bit-wide th32ModuleID etc. (kept identical across
// Win32/Win64 per the Toolhelp API contract).
type moduleEntry32 struct {
	size         uint32
	moduleID     uint32
	processID    uint32
	globalUsage  uint32
	procUsage    uint32
	modBaseAddr  uintptr
	modBaseSize  uint32
	hModule      uintptr
	szModule     [256]uint16
	szExePath    [260]uint16
}

func enableDebugPrivilege() error {
	var token windows.Token
	proc := windows.CurrentProcess()
	r1, _, _ := procOpenProcessToken.Call(uintptr(proc), tokenAdjustPrivileges|tokenQuery, uintptr(unsafe.Pointer(&token)))
	if r1 == 0 {
		return fmt.Errorf("inject: OpenProcessToken failed")
	}
	defer token.Close()

	var luid windows.LUID
	namePtr, err := windows.UTF16PtrFromString("SeDebugPrivilege")
	if err != nil {
		return err
	}
	r1, _, _ = procLookupPrivilegeValueW.Call(0, uintptr(unsafe.Pointer(namePtr)), uintptr(unsafe.Pointer(&luid)))
	if r1 == 0 {
		return fmt.Errorf("inject: LookupPrivilegeValueW failed")
	}

	privs := struct {
		PrivilegeCount uint32
		Luid           windows.LUID
		Attributes     uint32
	}{PrivilegeCount: 1, Luid: luid, Attributes: sePrivilegeEnabled}

	r1, _, _ = procAdjustTokenPrivileges.Call(uintptr(token), 0, uintptr(unsafe.Pointer(&privs)), 0, 0, 0)
	if r1 == 0 {
		return fmt.Errorf("inject: AdjustTokenPrivileges failed")
	}
	return nil
}

// Inject performs the full remote-injection protocol against pid, loading
// dllPath into its address space. It returns a *Error on any
// failure, always identifying the failing step.
func Inject(pid uint32, dllPath string) error {
	// Best-effort; a failure here doesn't prevent injection against
	// processes we already have rights to.
	_ = enableDebugPrivilege()

	access := uintptr(processCreateThread | processQueryInformation | processVMOperation | processVMWrite | processVMRead)
	hProcess, _, callErr := procOpenProcess.Call(access, 0, uintptr(pid))
	if hProcess == 0 {
		return &Error{Failure: FailureOpenProcess, PID: pid, Err: callErr}
	}
	defer windows.CloseHandle(windows.Handle(hProcess))

	targetIsWow64, err := isWow64(hProcess)
	if err != nil {
		return &Error{Failure: FailureBitnessCheck, PID: pid, Err: err}
	}
	selfIsWow64, err := isWow64(uintptr(windows.CurrentProcess()))
	if err != nil {
		return &Error{Failure: FailureBitnessCheck, PID: pid, Err: err}
	}
	crossBitness := targetIsWow64 != selfIsWow64

	pathPtr, err := windows.UTF16PtrFromString(dllPath)
	if err != nil {
		return &Error{Failure: FailureAllocatePath, PID: pid, Err: err}
	}
	pathBytes := unsafe.Slice((*byte)(unsafe.Pointer(pathPtr)), (len(dllPath)+1)*2)

	remoteAddr, _, callErr := procVirtualAllocEx.Call(hProcess, 0, uintptr(len(pathBytes)), memCommit|memReserve, pageReadWrite)
	if remoteAddr == 0 {
		return &Error{Failure: FailureAllocatePath, PID: pid, Err: callErr}
	}
	defer procVirtualFreeEx.Call(hProcess, remoteAddr, 0, memRelease)

	var written uintptr
	r1, _, callErr := procWriteProcessMemory.Call(hProcess, remoteAddr, uintptr(unsafe.Pointer(&pathBytes[0])), uintptr(len(pathBytes)), uintptr(unsafe.Pointer(&written)))
	if r1 == 0 {
		return &Error{Failure: FailureWritePath, PID: pid, Err: callErr}
	}

	var loadLibraryAddr uintptr
	if crossBitness {
		loadLibraryAddr, err = resolveLoadLibraryCrossBitness(uintptr(pid), hProcess)
	} else {
		loadLibraryAddr, err = resolveLoadLibrarySameBitness()
	}
	if err != nil {
		return &Error{Failure: FailureResolveLoadLibrary, PID: pid, Err: err}
	}

	hThread, _, callErr := procCreateRemoteThread.Call(hProcess, 0, 0, loadLibraryAddr, remoteAddr, 0, 0)
	if hThread == 0 {
		return &Error{Failure: FailureCreateRemoteThread, PID: pid, Err: callErr}
	}
	defer windows.CloseHandle(windows.Handle(hThread))

	const waitTimeoutMs = 10_000
	waitResult, _, _ := procWaitForSingleObject.Call(hThread, waitTimeoutMs)
	if waitResult != 0 /* WAIT_OBJECT_0 */ {
		return &Error{Failure: FailureWaitTimeout, PID: pid}
	}

	var exitCode uint32
	r1, _, _ = procGetExitCodeThread.Call(hThread, uintptr(unsafe.Pointer(&exitCode)))
	if r1 == 0 || exitCode == 0 {
		return &Error{Failure: FailureLoadLibraryReturnedNull, PID: pid}
	}

	return nil
}

func isWow64(hProcess uintptr) (bool, error) {
	var result int32
	r1, _, callErr := procIsWow64Process.Call(hProcess, uintptr(unsafe.Pointer(&result)))
	if r1 == 0 {
		return false, callErr
	}
	return result != 0, nil
}

// resolveLoadLibrarySameBitness resolves LoadLibraryW in our own address
// space, valid to hand to CreateRemoteThread only when the target shares our
// bitness (kernel32 loads at the same base for all same-bitness processes
// on a given boot).
func resolveLoadLibrarySameBitness() (uintptr, error) {
	h, err := windows.GetModuleHandle("kernel32.dll")
	if err != nil {
		return 0, err
	}
	addr, err := windows.GetProcAddress(h, "LoadLibraryW")
	if err != nil {
		return 0, err
	}
	return addr, nil
}

// resolveLoadLibraryCrossBitness finds kernel32's base inside the target
// process via a Toolhelp module snapshot, then walks its export directory
// over ReadProcessMemory to find LoadLibraryW, using findExportRemote's
// abstract reader.
func resolveLoadLibraryCrossBitness(pid uintptr, hProcess uintptr) (uintptr, error) {
	snapshot, _, callErr := procCreateToolhelp32Snapshot.Call(th32csSnapModule|th32csSnapModule32, pid)
	if snapshot == 0 || snapshot == ^uintptr(0) {
		return 0, fmt.Errorf("inject: CreateToolhelp32Snapshot: %w", callErr)
	}
	defer windows.CloseHandle(windows.Handle(snapshot))

	var entry moduleEntry32
	entry.size = uint32(unsafe.Sizeof(entry))

	r1, _, callErr := procModule32FirstW.Call(snapshot, uintptr(unsafe.Pointer(&entry)))
	if r1 == 0 {
		return 0, fmt.Errorf("inject: Module32FirstW: %w", callErr)
	}
	for {
		name := windows.UTF16ToString(entry.szModule[:])
		if equalFoldASCII(name, "kernel32.dll") {
			break
		}
		r1, _, _ = procModule32NextW.Call(snapshot, uintptr(unsafe.Pointer(&entry)))
		if r1 == 0 {
			return 0, fmt.Errorf("inject: kernel32.dll not found in target module list")
		}
	}

	reader := remoteReader(func(addr uintptr, size int) ([]byte, error) {
		buf := make([]byte, size)
		var n uintptr
		r1, _, callErr := procReadProcessMemory.Call(hProcess, addr, uintptr(unsafe.Pointer(&buf[0])), uintptr(size), uintptr(unsafe.Pointer(&n)))
		if r1 == 0 || int(n) != size {
			return nil, fmt.Errorf("ReadProcessMemory at 0x%X: %w", addr, callErr)
		}
		return buf, nil
	})

	return findExportRemote(reader, entry.modBaseAddr, "LoadLibraryW")
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
