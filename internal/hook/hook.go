// Package hook implements inline diversion of the two packet functions: a
// relative JMP patched into each function's prologue redirects execution
// through a small machine-code stub into Go, which then jumps to a
// trampoline holding the original bytes before returning control to the
// function past the patched prologue. This file holds the
// parts that are pure byte arithmetic and don't need Windows to compile or
// test; hook_windows.go performs the actual VirtualProtect/VirtualAlloc
// calls, and stub.go builds the machine-code bridge.
package hook

import (
	"encoding/binary"
	"fmt"
)

// MaxHookSize is the largest prologue patch this package supports; every
// build's SendHookSize/RecvHookSize (internal/offsets) must fit within it.
const MaxHookSize = 16

// TrampolineSize is the space reserved per hook for the trampoline: the
// saved original bytes and a JMP back to the function. The bridging stub
// is placed in the same allocation right after these TrampolineSize bytes.
const TrampolineSize = 64

// jmpRel32Size is the byte length of a JMP rel32 instruction (opcode + 4
// byte displacement).
const jmpRel32Size = 5

// BuildJmpPatch returns the bytes to write at fromAddr so control
// transfers to toAddr: a JMP rel32 followed by NOPs padding out to
// hookSize. hookSize must be >= 5.
func BuildJmpPatch(fromAddr, toAddr uintptr, hookSize int) ([]byte, error) {
	if hookSize < jmpRel32Size {
		return nil, fmt.Errorf("hook: hookSize %d too small for a JMP rel32", hookSize)
	}
	if hookSize > MaxHookSize {
		return nil, fmt.Errorf("hook: hookSize %d exceeds MaxHookSize %d", hookSize, MaxHookSize)
	}

	rel32 := relativeDisplacement(fromAddr, toAddr, jmpRel32Size)

	buf := make([]byte, hookSize)
	buf[0] = 0xE9
	binary.LittleEndian.PutUint32(buf[1:5], uint32(rel32))
	for i := jmpRel32Size; i < hookSize; i++ {
		buf[i] = 0x90 // NOP
	}
	return buf, nil
}

// relativeDisplacement computes the signed rel32 for a JMP/CALL instruction
// of instrLen bytes starting at fromAddr and targeting toAddr.
func relativeDisplacement(fromAddr, toAddr uintptr, instrLen int) int32 {
	return int32(int64(toAddr) - int64(fromAddr) - int64(instrLen))
}

// BuildTrampoline lays out a trampoline region: the first len(origBytes)
// bytes are the function's untouched original prologue, followed by a JMP
// rel32 back to targetAddr+hookSize. It
// returns an error if len(origBytes) differs from hookSize or if hookSize
// plus the return JMP does not fit in TrampolineSize.
func BuildTrampoline(origBytes []byte, trampolineAddr, targetAddr uintptr, hookSize int) ([]byte, error) {
	if len(origBytes) != hookSize {
		return nil, fmt.Errorf("hook: origBytes length %d does not match hookSize %d", len(origBytes), hookSize)
	}
	if hookSize+jmpRel32Size > TrampolineSize {
		return nil, fmt.Errorf("hook: hookSize %d leaves no room for the return JMP in a %d-byte trampoline", hookSize, TrampolineSize)
	}

	buf := make([]byte, hookSize+jmpRel32Size)
	copy(buf, origBytes)

	returnJmpAddr := trampolineAddr + uintptr(hookSize)
	returnTarget := targetAddr + uintptr(hookSize)
	rel32 := relativeDisplacement(returnJmpAddr, returnTarget, jmpRel32Size)

	buf[hookSize] = 0xE9
	binary.LittleEndian.PutUint32(buf[hookSize+1:hookSize+5], uint32(rel32))
	return buf, nil
}

// --- CDataStore sanity gates -------------------------------------------------
//
// Both hooked functions receive a pointer to a CDataStore-shaped object.
// Before dereferencing it we apply the same cheap sanity checks the
// original agent does, since a hook firing during partial construction of
// the object (or against the wrong overload) would otherwise read garbage.

// MinCDataStorePtr is the minimum plausible value for a CDataStore pointer;
// anything below it is almost certainly a small integer being misread as a
// pointer (a `ptr > 0x10000` sanity gate).
const MinCDataStorePtr = 0x10000

// MaxCDataStoreSize bounds a single packet body; WoW's own protocol never
// approaches this, so anything larger indicates the field isn't really a
// size.
const MaxCDataStoreSize = 1 << 20 // 1 MiB

// MinCDataStoreSizeOutbound/MinCDataStoreSizeInbound are the smallest
// well-formed packet bodies per direction: an outbound packet carries a
// 4-byte opcode, an inbound packet only a 2-byte one, so the same size
// floor would wrongly drop a short legitimate inbound packet.
const (
	MinCDataStoreSizeOutbound = 4
	MinCDataStoreSizeInbound  = 2
)

// CDataStoreLayout is the fixed field-offset layout of the client's
// CDataStore, relative to the buffer pointer the hook reads off the
// stack (not the thiscall receiver in ECX, which is a different object).
const (
	OffsetDataPtr = 0x04
	OffsetBase    = 0x08
	OffsetAlloc   = 0x0C
	OffsetSize    = 0x10
	OffsetCursor  = 0x14
)

// ValidateCDataStore applies the pointer/size sanity gates the original
// hooks apply before touching a CDataStore's bytes. minSize is the
// direction-specific floor (MinCDataStoreSizeOutbound/Inbound).
func ValidateCDataStore(ptr uintptr, size uint32, minSize uint32) bool {
	if ptr <= MinCDataStorePtr {
		return false
	}
	if size < minSize || size >= MaxCDataStoreSize {
		return false
	}
	return true
}

// ExtractOutboundOpcode reads the 4-byte opcode from the front of an
// outbound (client->server) packet body.
func ExtractOutboundOpcode(body []byte) (uint32, bool) {
	if len(body) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(body[0:4]), true
}

// ExtractInboundOpcode reads the 2-byte opcode from the front of an inbound
// (server->client) packet body — the client's receive handler uses a
// narrower opcode field than the send path.
func ExtractInboundOpcode(body []byte) (uint32, bool) {
	if len(body) < 2 {
		return 0, false
	}
	return uint32(binary.LittleEndian.Uint16(body[0:2])), true
}
