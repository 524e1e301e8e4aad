//go:build windows

package agentcore

import "golang.org/x/sys/windows"

var (
	modWinmm   = windows.NewLazySystemDLL("winmm.dll")
	modKernel  = windows.NewLazySystemDLL("kernel32.dll")

	procTimeGetTime  = modWinmm.NewProc("timeGetTime")
	procGetTickCount = modKernel.NewProc("GetTickCount")
)

// timeGetTime returns a millisecond timestamp for ring entries, preferring
// winmm's higher-resolution timer and falling back to GetTickCount if
// winmm didn't load.
func timeGetTime() uint32 {
	if procTimeGetTime.Find() == nil {
		r1, _, _ := procTimeGetTime.Call()
		return uint32(r1)
	}
	r1, _, _ := procGetTickCount.Call()
	return uint32(r1)
}
