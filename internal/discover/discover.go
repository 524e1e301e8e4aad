// Package discover finds candidate World of Warcraft client windows on the
// local desktop and resolves each into a Target descriptor. The
// window-enumeration half is Windows-specific and lives in
// discover_windows.go; this file holds the pure matching rules and the
// Target/Match types so they can be tested without Windows.
package discover

import "strings"

// Target is the fully resolved description of one discoverable WoW client
// process.
type Target struct {
	PID         uint32
	HWnd        uintptr
	WindowTitle string
	Build       uint32
	VersionName string
	ExePath     string
}

// windowCandidate is the raw material EnumWindows produces for one top-level
// window, before PID dedup and build resolution.
type windowCandidate struct {
	hwnd      uintptr
	pid       uint32
	title     string
	className string
}

// titlePrefixes and classPrefixes are the case-insensitive prefixes that
// identify a WoW client window.
var (
	titlePrefixes = []string{"world of warcraft"}
	classPrefixes = []string{"gxwindow"}
)

// matchesWindow reports whether a window's title or class name identifies it
// as a WoW client, independent of how the (title, className) pair was
// obtained — the rule itself is OS-independent even though gathering the
// pair is not.
func matchesWindow(title, className string) bool {
	lowerTitle := strings.ToLower(title)
	for _, p := range titlePrefixes {
		if strings.HasPrefix(lowerTitle, p) {
			return true
		}
	}
	lowerClass := strings.ToLower(className)
	for _, p := range classPrefixes {
		if strings.HasPrefix(lowerClass, p) {
			return true
		}
	}
	return false
}

// dedupeByPID keeps the first window seen per PID. Multiple top-level
// windows can belong to the same client process (e.g. a splash window still
// closing); we dedupe by PID for the same reason.
func dedupeByPID(candidates []windowCandidate) []windowCandidate {
	seen := make(map[uint32]bool, len(candidates))
	out := make([]windowCandidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.pid] {
			continue
		}
		seen[c.pid] = true
		out = append(out, c)
	}
	return out
}
