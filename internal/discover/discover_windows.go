//go:build windows

package discover

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wowcap/capture/internal/buildinfo"
	"github.com/wowcap/capture/internal/offsets"
)

var (
	modUser32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows             = modUser32.NewProc("EnumWindows")
	procGetWindowTextW          = modUser32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW    = modUser32.NewProc("GetWindowTextLengthW")
	procGetClassNameW           = modUser32.NewProc("GetClassNameW")
	procGetWindowThreadProcessID = modUser32.NewProc("GetWindowThreadProcessId")
)

// Discover enumerates top-level windows, keeps the ones matching a WoW
// client, resolves each candidate's build number and executable path, and
// returns one Target per distinct process. Unresolvable candidates are
// still returned with Build 0 rather than dropped: VersionName is
// "Unknown (access denied)" when the process or its image path can't be
// queried, and "Unknown" when its version resource can't be read.
func Discover() ([]Target, error) {
	var candidates []windowCandidate

	cb := syscall.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
		title := windowText(hwnd)
		class := windowClassName(hwnd)
		if matchesWindow(title, class) {
			var pid uint32
			procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
			candidates = append(candidates, windowCandidate{
				hwnd:      hwnd,
				pid:       pid,
				title:     title,
				className: class,
			})
		}
		return 1 // continue enumeration
	})

	r1, _, err := procEnumWindows.Call(cb, 0)
	if r1 == 0 {
		return nil, err
	}

	deduped := dedupeByPID(candidates)
	targets := make([]Target, 0, len(deduped))
	for _, c := range deduped {
		targets = append(targets, resolveTarget(c))
	}
	return targets, nil
}

func windowText(hwnd uintptr) string {
	length, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if length == 0 {
		return ""
	}
	buf := make([]uint16, length+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func windowClassName(hwnd uintptr) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

// resolveTarget fills in build/version/path for one matched window, never
// failing outright: a process we can't query is reported as unknown rather
// than dropped, so the user still sees it in a picker.
func resolveTarget(c windowCandidate) Target {
	t := Target{
		PID:         c.pid,
		HWnd:        c.hwnd,
		WindowTitle: c.title,
		VersionName: "Unknown (access denied)",
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, c.pid)
	if err != nil {
		return t
	}
	defer windows.CloseHandle(handle)

	path, err := queryFullProcessImageName(handle)
	if err != nil {
		return t
	}
	t.ExePath = path

	build, err := buildinfo.BuildNumberForPath(path)
	if err != nil {
		t.VersionName = "Unknown"
		return t
	}
	t.Build = build
	t.VersionName = offsets.VersionName(build)
	return t
}

func queryFullProcessImageName(handle windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size)
	if err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}
