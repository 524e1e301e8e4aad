//go:build windows

package hook

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var modKernel32 = windows.NewLazySystemDLL("kernel32.dll")

var (
	procVirtualAlloc          = modKernel32.NewProc("VirtualAlloc")
	procVirtualProtect        = modKernel32.NewProc("VirtualProtect")
	procFlushInstructionCache = modKernel32.NewProc("FlushInstructionCache")
)

const (
	memCommit       = 0x1000
	memReserve      = 0x2000
	pageExecuteRW   = 0x40
)

// PacketObserver receives one captured packet body at the moment its hook
// fires, already past the CDataStore sanity gate. It must not block or
// allocate heavily; it runs on the client's own send/receive thread.
type PacketObserver func(direction byte, opcode uint32, data []byte)

// site holds everything needed to install, and later cleanly remove, one
// inline hook.
type site struct {
	targetAddr     uintptr
	hookSize       int
	origBytes      []byte
	scratchAddr    uintptr // VirtualAlloc'd region: [trampoline][stub]
	trampolineAddr uintptr
	stubAddr       uintptr
	callback       uintptr // syscall.NewCallback handle, kept alive for the hook's lifetime
	installed      bool
}

// Manager owns the two packet hooks (send, recv) for one agent session. It
// is safe for Install/Uninstall to be called more than once; both are
// idempotent.
type Manager struct {
	mu       sync.Mutex
	send     *site
	recv     *site
	observer PacketObserver
}

// NewManager creates a Manager that forwards every captured packet to
// observer.
func NewManager(observer PacketObserver) *Manager {
	return &Manager{observer: observer}
}

// Active reports whether both hooks are currently installed.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send != nil && m.send.installed && m.recv != nil && m.recv.installed
}

// Install patches the send and recv functions at sendAddr/recvAddr. On partial
// failure it rolls back whatever it already installed, mirroring
// install_hooks's outbound-rollback-on-inbound-failure behavior.
func (m *Manager) Install(sendAddr, recvAddr uintptr, sendHookSize, recvHookSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.send != nil || m.recv != nil {
		return nil // already installed
	}

	send, err := m.installSite(sendAddr, sendHookSize, DirectionOutboundMarker, StackArgOutboundOffset)
	if err != nil {
		return fmt.Errorf("hook: install send hook: %w", err)
	}

	recv, err := m.installSite(recvAddr, recvHookSize, DirectionInboundMarker, StackArgInboundOffset)
	if err != nil {
		uninstallSite(send)
		return fmt.Errorf("hook: install recv hook: %w", err)
	}

	m.send = send
	m.recv = recv
	return nil
}

// Uninstall restores both original prologues, if installed. Safe to call
// when nothing is installed.
func (m *Manager) Uninstall() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.send != nil {
		if err := uninstallSite(m.send); err != nil && firstErr == nil {
			firstErr = err
		}
		m.send = nil
	}
	if m.recv != nil {
		if err := uninstallSite(m.recv); err != nil && firstErr == nil {
			firstErr = err
		}
		m.recv = nil
	}
	return firstErr
}

// DirectionOutboundMarker/DirectionInboundMarker tag which extraction rule
// and ring direction byte a given site uses; they reuse ringproto's wire
// values so callers never need a second translation table.
const (
	DirectionOutboundMarker = 1
	DirectionInboundMarker  = 0
)

func (m *Manager) installSite(targetAddr uintptr, hookSize int, direction byte, dataStoreStackOffset uintptr) (*site, error) {
	origBytes := make([]byte, hookSize)
	copy(origBytes, unsafe.Slice((*byte)(unsafe.Pointer(targetAddr)), hookSize))

	scratchSize := uintptr(TrampolineSize + ThiscallBridgeStubSize)
	scratchAddr, _, callErr := procVirtualAlloc.Call(0, scratchSize, memCommit|memReserve, pageExecuteRW)
	if scratchAddr == 0 {
		return nil, fmt.Errorf("VirtualAlloc: %w", callErr)
	}
	trampolineAddr := scratchAddr
	stubAddr := scratchAddr + TrampolineSize

	tramp, err := BuildTrampoline(origBytes, trampolineAddr, targetAddr, hookSize)
	if err != nil {
		return nil, err
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(trampolineAddr)), len(tramp)), tramp)

	cb := syscall.NewCallback(func(bufferPtr uintptr) uintptr {
		m.onHookFired(bufferPtr, direction)
		return 0
	})

	stub := BuildThiscallBridgeStub(stubAddr, cb, trampolineAddr, dataStoreStackOffset)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(stubAddr)), len(stub)), stub)

	if err := flushInstructionCache(scratchAddr, scratchSize); err != nil {
		return nil, err
	}

	patch, err := BuildJmpPatch(targetAddr, stubAddr, hookSize)
	if err != nil {
		return nil, err
	}
	if err := writeProtected(targetAddr, patch); err != nil {
		return nil, err
	}
	if err := flushInstructionCache(targetAddr, uintptr(hookSize)); err != nil {
		return nil, err
	}

	return &site{
		targetAddr:     targetAddr,
		hookSize:       hookSize,
		origBytes:      origBytes,
		scratchAddr:    scratchAddr,
		trampolineAddr: trampolineAddr,
		stubAddr:       stubAddr,
		callback:       cb,
		installed:      true,
	}, nil
}

func uninstallSite(s *site) error {
	if s == nil || !s.installed {
		return nil
	}
	if err := writeProtected(s.targetAddr, s.origBytes); err != nil {
		return err
	}
	if err := flushInstructionCache(s.targetAddr, uintptr(s.hookSize)); err != nil {
		return err
	}
	s.installed = false
	return nil
}

// onHookFired runs on the client's own thread at the hook site. bufferPtr is
// the CDataStore message-buffer pointer the bridge stub read off the stack
// (not the thiscall receiver in ECX, a different object entirely). The
// buffer pointer itself is gated before any field of it is read, then the
// inner data pointer and size are gated with ValidateCDataStore using the
// direction's own minimum size, before the opcode is extracted and the body
// forwarded to the observer — never blocking, since it's on the game's
// send/recv path.
func (m *Manager) onHookFired(bufferPtr uintptr, direction byte) {
	if bufferPtr <= MinCDataStorePtr {
		return
	}

	dataPtr := *(*uintptr)(unsafe.Pointer(bufferPtr + OffsetDataPtr))
	size := *(*uint32)(unsafe.Pointer(bufferPtr + OffsetSize))

	minSize := uint32(MinCDataStoreSizeOutbound)
	if direction == DirectionInboundMarker {
		minSize = MinCDataStoreSizeInbound
	}
	if !ValidateCDataStore(dataPtr, size, minSize) {
		return
	}

	body := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), int(size))

	var opcode uint32
	var ok bool
	if direction == DirectionOutboundMarker {
		opcode, ok = ExtractOutboundOpcode(body)
	} else {
		opcode, ok = ExtractInboundOpcode(body)
	}
	if !ok {
		return
	}

	if m.observer != nil {
		m.observer(direction, opcode, body)
	}
}

func writeProtected(addr uintptr, data []byte) error {
	var oldProtect uint32
	r1, _, callErr := procVirtualProtect.Call(addr, uintptr(len(data)), pageExecuteRW, uintptr(unsafe.Pointer(&oldProtect)))
	if r1 == 0 {
		return fmt.Errorf("VirtualProtect: %w", callErr)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)
	procVirtualProtect.Call(addr, uintptr(len(data)), uintptr(oldProtect), uintptr(unsafe.Pointer(&oldProtect)))
	return nil
}

func flushInstructionCache(addr uintptr, size uintptr) error {
	r1, _, callErr := procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, size)
	if r1 == 0 {
		return fmt.Errorf("FlushInstructionCache: %w", callErr)
	}
	return nil
}
