//go:build windows

package agentcore

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/windows"

	"github.com/wowcap/capture/internal/buildinfo"
	"github.com/wowcap/capture/internal/hook"
	"github.com/wowcap/capture/internal/offsets"
	"github.com/wowcap/capture/internal/ringproto"
	"github.com/wowcap/capture/internal/shm"
)

// Agent owns one attach/detach cycle inside the target process: detecting
// the build, opening the shared ring, installing the hooks, and flipping
// AgentReady once a reader can safely start polling.
type Agent struct {
	mu      sync.Mutex
	state   State
	log     *slog.Logger
	mapping shm.Mapping
	header  []byte
	data    []byte
	hooks   *hook.Manager
}

// New creates an Agent. log may be nil, in which case a discard logger is
// used — the agent runs inside someone else's process and should never
// write to stdout/stderr by default.
func New(log *slog.Logger) *Agent {
	if log == nil {
		log = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Agent{state: StateUnattached, log: log}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Attach runs the full bootstrap: detect build, open the ring, install
// hooks, mark ready. On any failure it tears down whatever it already set
// up, leaves the agent in StateFailed and returns the error; Detach then
// moves it to StateDetached.
func (a *Agent) Attach() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.transition(StateDetecting); err != nil {
		return err
	}

	info, err := buildinfo.Detect()
	if err != nil {
		a.fail(fmt.Errorf("detect build: %w", err))
		return err
	}
	resolved, err := offsets.Resolve(info.Build, info.ModuleBase)
	if err != nil {
		a.fail(fmt.Errorf("resolve offsets for build %d: %w", info.Build, err))
		return err
	}
	a.log.Info("detected build", "build", info.Build, "version", info.VersionName)

	pid := windows.GetCurrentProcessId()
	name := shm.Name(MappingPrefix, pid)
	totalSize := shm.TotalSize(RingCapacity)

	mapping, err := shm.Create(name, totalSize)
	if err != nil {
		a.fail(fmt.Errorf("create shared memory: %w", err))
		return err
	}
	a.mapping = mapping

	view := mapping.View()
	a.header = view[:ringproto.HeaderSize]
	a.data = view[ringproto.HeaderSize:]
	ringproto.InitHeader(a.header, RingCapacity, info.Build)

	a.hooks = hook.NewManager(a.onPacket)
	if err := a.hooks.Install(resolved.SendPacket, resolved.RecvHandler, resolved.SendHookSize, resolved.RecvHookSize); err != nil {
		a.fail(fmt.Errorf("install hooks: %w", err))
		_ = a.mapping.Close()
		a.header, a.data = nil, nil
		return err
	}

	if err := a.transition(StateHooked); err != nil {
		return err
	}

	ringproto.PutAgentReady(a.header, 1)
	if err := a.transition(StateReady); err != nil {
		return err
	}

	a.log.Info("agent ready", "pid", pid, "mapping", name)
	return nil
}

// Detach reverses Attach in the opposite order, tolerating a partially
// attached agent (hooks.Uninstall and mapping.Close are both idempotent).
func (a *Agent) Detach() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateDetached || a.state == StateUnattached {
		return nil
	}
	_ = a.transition(StateDetaching)

	var firstErr error
	if a.header != nil {
		ringproto.PutAgentReady(a.header, 0)
	}
	if a.hooks != nil {
		if err := a.hooks.Uninstall(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.mapping != nil {
		if err := a.mapping.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.state = StateDetached
	return firstErr
}

// onPacket is the hook.PacketObserver: write straight into the ring. Drops
// are silent by design (ringproto.Write's contract) — the agent never
// blocks the game's network thread.
func (a *Agent) onPacket(direction byte, opcode uint32, data []byte) {
	if a.header == nil {
		return
	}
	ringproto.Write(a.header, a.data, direction, opcode, data, timeGetTime())
}

func (a *Agent) transition(to State) error {
	if err := nextState(a.state, to); err != nil {
		return err
	}
	a.state = to
	return nil
}

func (a *Agent) fail(err error) {
	a.log.Error("agent attach failed", "error", err)
	_ = nextState(a.state, StateFailed)
	a.state = StateFailed
}
