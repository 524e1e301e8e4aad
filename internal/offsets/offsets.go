// Package offsets holds the closed, compile-time table mapping a detected
// build number to the absolute addresses and hook sizes needed to divert
// the two packet functions per build.
package offsets

import "fmt"

// Record is one supported build's offset data, expressed relative to the
// target module base. Call Resolve to turn it into absolute addresses once
// the module base is known.
type Record struct {
	// SendPacketRVA is the offset (from module base) of the outbound send
	// function.
	SendPacketRVA uintptr
	// RecvHandlerRVA is the offset of the inbound receive handler.
	RecvHandlerRVA uintptr
	// SendHookSize and RecvHookSize are the minimum prologue bytes that
	// must be overwritten at each site; both are in [5, 16] and land on an
	// instruction boundary for the corresponding build.
	SendHookSize int
	RecvHookSize int

	// Auxiliary fields, not used by the core diversion/ring pipeline, kept
	// only because the offset record names them explicitly as
	// present-but-unused-by-core.
	OpcodeTableRVA uintptr
	OpcodeNamesRVA uintptr
	NumOpcodes     uint32

	// VersionName is a human-readable label for the build, surfaced on the
	// Target descriptor (see internal/discover).
	VersionName string
}

// Resolved is a Record with RVAs turned into absolute addresses for one
// running target whose module base is known.
type Resolved struct {
	Build          uint32
	SendPacket     uintptr
	RecvHandler    uintptr
	SendHookSize   int
	RecvHookSize   int
	OpcodeTable    uintptr
	OpcodeNames    uintptr
	NumOpcodes     uint32
	VersionName    string
}

// table is the closed enumeration of supported builds. Build 0 is reserved
// for "unknown" and must never appear here.
var table = map[uint32]Record{
	5875: {
		SendPacketRVA:  0x001B5630,
		RecvHandlerRVA: 0x00137AA0,
		SendHookSize:   6,
		RecvHookSize:   9,
		OpcodeTableRVA: 0x00C27E00,
		OpcodeNamesRVA: 0,
		NumOpcodes:     0x1DD,
		VersionName:    "1.12.1 (Vanilla)",
	},
	8606: {
		SendPacketRVA:  0x00246530,
		RecvHandlerRVA: 0x002455A0,
		SendHookSize:   6,
		RecvHookSize:   6,
		OpcodeTableRVA: 0x00A03F80,
		OpcodeNamesRVA: 0,
		NumOpcodes:     0x3FF,
		VersionName:    "2.4.3 (The Burning Crusade)",
	},
	12340: {
		SendPacketRVA:  0x003653B0,
		RecvHandlerRVA: 0x0036DC80,
		SendHookSize:   6,
		RecvHookSize:   6,
		OpcodeTableRVA: 0x00879CF4,
		OpcodeNamesRVA: 0x005E0E24,
		NumOpcodes:     0x4FF,
		VersionName:    "3.3.5a (Wrath of the Lich King)",
	},
	15595: {
		SendPacketRVA:  0x00405F70,
		RecvHandlerRVA: 0x004098C0,
		SendHookSize:   6,
		RecvHookSize:   6,
		OpcodeTableRVA: 0x009BE5A0,
		OpcodeNamesRVA: 0x009BE5A4,
		NumOpcodes:     0x7FF,
		VersionName:    "4.3.4 (Cataclysm)",
	},
}

// ErrUnsupportedBuild is returned (wrapped with the build number) when a
// detected build has no entry in the table.
type ErrUnsupportedBuild struct {
	Build uint32
}

func (e *ErrUnsupportedBuild) Error() string {
	return fmt.Sprintf("offsets: unsupported build %d", e.Build)
}

// Lookup returns the Record for build, or ErrUnsupportedBuild.
func Lookup(build uint32) (Record, error) {
	if build == 0 {
		return Record{}, &ErrUnsupportedBuild{Build: build}
	}
	r, ok := table[build]
	if !ok {
		return Record{}, &ErrUnsupportedBuild{Build: build}
	}
	return r, nil
}

// Resolve looks up build and adds base to every recorded RVA, producing
// absolute addresses for the running process whose module base is base.
func Resolve(build uint32, base uintptr) (Resolved, error) {
	r, err := Lookup(build)
	if err != nil {
		return Resolved{}, err
	}
	resolved := Resolved{
		Build:        build,
		SendPacket:   base + r.SendPacketRVA,
		RecvHandler:  base + r.RecvHandlerRVA,
		SendHookSize: r.SendHookSize,
		RecvHookSize: r.RecvHookSize,
		NumOpcodes:   r.NumOpcodes,
		VersionName:  r.VersionName,
	}
	if r.OpcodeTableRVA != 0 {
		resolved.OpcodeTable = base + r.OpcodeTableRVA
	}
	if r.OpcodeNamesRVA != 0 {
		resolved.OpcodeNames = base + r.OpcodeNamesRVA
	}
	return resolved, nil
}

// VersionName returns the human-readable label for build, or "Unknown" /
// "Unknown (build N)" for anything not in the table — used by discovery
// even when a candidate can't be fully resolved.
func VersionName(build uint32) string {
	if build == 0 {
		return "Unknown"
	}
	if r, ok := table[build]; ok {
		return r.VersionName
	}
	return fmt.Sprintf("Unknown (build %d)", build)
}

// SupportedBuilds returns the sorted-by-caller-irrelevant set of build
// numbers this table recognizes, mainly for diagnostics/tests.
func SupportedBuilds() []uint32 {
	builds := make([]uint32, 0, len(table))
	for b := range table {
		builds = append(builds, b)
	}
	return builds
}
