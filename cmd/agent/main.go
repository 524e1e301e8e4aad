//go:build windows

// Command agent is the packet-capture DLL injected into the game client.
// Built with -buildmode=c-shared, so Windows loads it like any native DLL;
// Go's own runtime bring-up happens during that load, and init() below is
// where a DllMain(DLL_PROCESS_ATTACH) handler would live.
//
// init() cannot safely do the attach work itself: the loader lock is held
// while the Go runtime finishes starting up, and Attach ends up creating
// OS threads and taking locks of its own (shared-memory mapping, hook
// installation). Spawning a goroutine and returning immediately lets
// init() return fast and defers the real work until after the loader
// lock is released.
package main

import "C"

import (
	"log/slog"
	"os"

	"github.com/wowcap/capture/internal/agentcore"
)

var liveAgent *agentcore.Agent

func init() {
	go bootstrap()
}

func bootstrap() {
	log := slog.New(slog.NewJSONHandler(logSink(), &slog.HandlerOptions{Level: slog.LevelInfo}))
	liveAgent = agentcore.New(log)
	if err := liveAgent.Attach(); err != nil {
		log.Error("attach failed", "error", err)
	}
}

// logSink sends agent diagnostics to wowcapture-agent.log in the temp
// directory rather than stdout, since an injected DLL usually has no
// console to write to. It falls back to stderr if the file can't be opened.
func logSink() *os.File {
	f, err := os.OpenFile(os.TempDir()+"/wowcapture-agent.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return os.Stderr
	}
	return f
}

//export WowCaptureDetach
func WowCaptureDetach() {
	if liveAgent != nil {
		_ = liveAgent.Detach()
	}
}

func main() {}
