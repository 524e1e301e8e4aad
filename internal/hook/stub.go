package hook

import "encoding/binary"

// StackArgOutboundOffset/StackArgInboundOffset are the byte offsets, from
// esp at the hooked function's entry point, of the stack argument carrying
// the CDataStore message-buffer pointer. The thiscall receiver (`this`, in
// ECX) is a different object — the NetClient instance, not the buffer —
// and is never dereferenced by the bridge. The outbound send hook receives
// the buffer as its 1st stack argument; the inbound receive hook receives
// it as its 2nd, with an unused parameter ahead of it.
const (
	StackArgOutboundOffset = 4
	StackArgInboundOffset  = 8
)

// BuildThiscallBridgeStub assembles the small x86 stub that lets a plain Go
// function observe a thiscall-convention call site without disturbing it.
// Go has no `extern "thiscall"` equivalent and cgo gives no guarantee about
// which registers survive the trip into C and back, so instead of calling
// into Go directly from the hooked prologue, the JMP patch (BuildJmpPatch)
// lands here first:
//
//	PUSH ECX                       ; save `this`, in case the callee clobbers it
//	PUSH dword ptr [esp+off]       ; the CDataStore buffer pointer, as the sole stdcall arg
//	MOV  EAX, goFunc               ; address of a Go func wrapped by syscall.NewCallback
//	CALL EAX                       ; stdcall: callee pops its one argument
//	POP  ECX                       ; restore `this`
//	JMP  trampoline                ; resume the original prologue bytes, then the function
//
// off is dataStoreStackOffset+4, the +4 accounting for the PUSH ECX already
// on the stack by the time the second push executes. goFunc must be the
// uintptr returned by syscall.NewCallback for a Go function of a single
// uintptr argument; NewCallback's generated thunk follows the stdcall
// protocol on 386, which is exactly what this stub's CALL expects.
//
// stubAddr is where these bytes will live once written (needed to compute
// the final JMP's rel32); trampolineAddr is the trampoline built by
// BuildTrampoline for the same hook site; dataStoreStackOffset is
// StackArgOutboundOffset or StackArgInboundOffset depending on which
// function is being hooked.
func BuildThiscallBridgeStub(stubAddr, goFuncAddr, trampolineAddr, dataStoreStackOffset uintptr) []byte {
	buf := make([]byte, 0, ThiscallBridgeStubSize)
	buf = append(buf, 0x51) // PUSH ECX

	disp8 := byte(dataStoreStackOffset + 4)
	buf = append(buf, 0xFF, 0x74, 0x24, disp8) // PUSH dword ptr [esp+disp8]

	buf = append(buf, 0xB8) // MOV EAX, imm32
	buf = binary.LittleEndian.AppendUint32(buf, uint32(goFuncAddr))
	buf = append(buf, 0xFF, 0xD0) // CALL EAX
	buf = append(buf, 0x59)       // POP ECX

	jmpAt := stubAddr + uintptr(len(buf))
	rel32 := relativeDisplacement(jmpAt, trampolineAddr, jmpRel32Size)
	buf = append(buf, 0xE9)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rel32))

	return buf
}

// ThiscallBridgeStubSize is the fixed size of the stub BuildThiscallBridgeStub
// produces, so callers can size the scratch allocation ahead of the call.
const ThiscallBridgeStubSize = 1 + 4 + 1 + 4 + 2 + 1 + 1 + 4
