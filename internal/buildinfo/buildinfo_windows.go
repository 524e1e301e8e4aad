//go:build windows

package buildinfo

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wowcap/capture/internal/offsets"
)

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modVersion  = windows.NewLazySystemDLL("version.dll")

	procGetModuleHandleW        = modKernel32.NewProc("GetModuleHandleW")
	procGetModuleFileNameW      = modKernel32.NewProc("GetModuleFileNameW")
	procGetFileVersionInfoSizeW = modVersion.NewProc("GetFileVersionInfoSizeW")
	procGetFileVersionInfoW     = modVersion.NewProc("GetFileVersionInfoW")
	procVerQueryValueW          = modVersion.NewProc("VerQueryValueW")
)

// ErrVersionQuery wraps any failure in the GetFileVersionInfo/VerQueryValue
// chain with the step that failed.
type ErrVersionQuery struct {
	Step string
	Code uintptr
}

func (e *ErrVersionQuery) Error() string {
	return fmt.Sprintf("buildinfo: %s failed (code %d)", e.Step, e.Code)
}

// mainModuleBase returns the base address of the process's own main module,
// equivalent to calling GetModuleHandleW(NULL).
func mainModuleBase() (uintptr, error) {
	r1, _, err := procGetModuleHandleW.Call(0)
	if r1 == 0 {
		return 0, fmt.Errorf("buildinfo: GetModuleHandleW: %w", err)
	}
	return r1, nil
}

// mainModulePath resolves the full path of the running executable.
func mainModulePath() (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	r1, _, err := procGetModuleFileNameW.Call(0, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r1 == 0 {
		return "", fmt.Errorf("buildinfo: GetModuleFileNameW: %w", err)
	}
	return windows.UTF16ToString(buf), nil
}

// FixedFileInfoFromPath reads VS_FIXEDFILEINFO out of the version resource
// of the file at path. Exported
// so internal/discover can resolve a build number from a remote process's
// image path without duplicating the VerQueryValueW dance.
func FixedFileInfoFromPath(path string) (FixedFileInfo, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return FixedFileInfo{}, err
	}

	size, _, _ := procGetFileVersionInfoSizeW.Call(uintptr(unsafe.Pointer(pathPtr)), 0)
	if size == 0 {
		return FixedFileInfo{}, &ErrVersionQuery{Step: "GetFileVersionInfoSizeW"}
	}

	data := make([]byte, size)
	ok, _, _ := procGetFileVersionInfoW.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		0,
		size,
		uintptr(unsafe.Pointer(&data[0])),
	)
	if ok == 0 {
		return FixedFileInfo{}, &ErrVersionQuery{Step: "GetFileVersionInfoW"}
	}

	var block uintptr
	var blockLen uint32
	subBlock, err := windows.UTF16PtrFromString(`\`)
	if err != nil {
		return FixedFileInfo{}, err
	}
	ok, _, _ = procVerQueryValueW.Call(
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(unsafe.Pointer(subBlock)),
		uintptr(unsafe.Pointer(&block)),
		uintptr(unsafe.Pointer(&blockLen)),
	)
	if ok == 0 || block == 0 {
		return FixedFileInfo{}, &ErrVersionQuery{Step: "VerQueryValueW"}
	}

	// VS_FIXEDFILEINFO layout: signature, strucVersion, fileVersionMS,
	// fileVersionLS, then fields we don't need.
	raw := unsafe.Slice((*uint32)(unsafe.Pointer(block)), 4)
	return FixedFileInfo{FileVersionMS: raw[2], FileVersionLS: raw[3]}, nil
}

// Detect identifies the build number and module base of the process this
// agent is running inside (i.e. called from within the injected DLL).
func Detect() (Info, error) {
	base, err := mainModuleBase()
	if err != nil {
		return Info{}, err
	}
	path, err := mainModulePath()
	if err != nil {
		return Info{}, err
	}
	ffi, err := FixedFileInfoFromPath(path)
	if err != nil {
		return Info{}, err
	}
	build := BuildFromFileVersion(ffi)
	return Info{
		Build:       build,
		VersionName: offsets.VersionName(build),
		ModuleBase:  base,
	}, nil
}

// BuildNumberForPath resolves just the build number for an arbitrary
// executable path, used by internal/discover to identify candidate
// processes from the controller side.
func BuildNumberForPath(path string) (uint32, error) {
	ffi, err := FixedFileInfoFromPath(path)
	if err != nil {
		return 0, err
	}
	return BuildFromFileVersion(ffi), nil
}
