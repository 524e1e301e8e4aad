package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/wowcap/capture/internal/config"
	"github.com/wowcap/capture/internal/discover"
	"github.com/wowcap/capture/internal/inject"
	"github.com/wowcap/capture/internal/metrics"
	"github.com/wowcap/capture/internal/ringproto"
	"github.com/wowcap/capture/internal/shm"
	"github.com/wowcap/capture/internal/stream"
	"github.com/wowcap/capture/pb/capture"
)

// attachment tracks one target the controller has injected into and opened a
// ring for, so runCaptureLoop can tell a freshly discovered target apart
// from one it's already polling.
type attachment struct {
	mapping   shm.Mapping
	sessionID string
}

// runCaptureLoop is the controller's own discover/inject/poll cycle: every
// discoverInterval it re-scans for WoW client windows, injects the agent DLL
// into anything new, then on every pollInterval tick drains each attached
// target's ring and publishes the decoded packets. It never exits on its own
// except when ctx is cancelled, matching the rest of cmdServe's goroutines.
func runCaptureLoop(ctx context.Context, log *slog.Logger, cfg *config.Config, broadcaster *stream.Broadcaster, targets *stream.GRPCServer) {
	const discoverInterval = 2 * time.Second
	pollInterval := time.Duration(cfg.Capture.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 15 * time.Millisecond
	}

	discoverTicker := time.NewTicker(discoverInterval)
	defer discoverTicker.Stop()
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	attached := make(map[uint32]*attachment)
	defer func() {
		for pid, a := range attached {
			if err := a.mapping.Close(); err != nil {
				log.Warn("capture loop: close mapping on shutdown", "pid", pid, "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-discoverTicker.C:
			discoverAndAttach(log, cfg, attached, targets)

		case <-pollTicker.C:
			for pid, a := range attached {
				pollOnce(log, pid, a, broadcaster)
			}
		}
	}
}

// discoverAndAttach scans for targets and injects into every one not already
// attached. A target that disappears from discovery (process exited) has its
// mapping closed and is dropped.
func discoverAndAttach(log *slog.Logger, cfg *config.Config, attached map[uint32]*attachment, targets *stream.GRPCServer) {
	found, err := discover.Discover()
	if err != nil {
		log.Warn("capture loop: discover failed", "error", err)
		return
	}

	seen := make(map[uint32]bool, len(found))
	for _, t := range found {
		seen[t.PID] = true
		targets.SetTarget(&capture.TargetInfo{
			Pid:         t.PID,
			WindowTitle: t.WindowTitle,
			Build:       t.Build,
			VersionName: t.VersionName,
			Attached:    attached[t.PID] != nil,
		})

		if _, ok := attached[t.PID]; ok {
			continue
		}
		attachTarget(log, cfg, t, attached, targets)
	}

	for pid, a := range attached {
		if seen[pid] {
			continue
		}
		if err := a.mapping.Close(); err != nil {
			log.Warn("capture loop: close mapping for exited target", "pid", pid, "error", err)
		}
		delete(attached, pid)
		targets.RemoveTarget(pid)
		metrics.AttachedTargets.Dec()
	}
}

// attachTarget injects the capture agent into t (if not already loaded) and
// opens its shared-memory ring, following the standard attach
// sequence. Injection failures are logged and retried on the next discovery
// tick rather than treated as fatal.
func attachTarget(log *slog.Logger, cfg *config.Config, t discover.Target, attached map[uint32]*attachment, targets *stream.GRPCServer) {
	if err := inject.Inject(t.PID, cfg.Capture.DLLPath); err != nil {
		log.Warn("capture loop: inject failed", "pid", t.PID, "error", err)
		return
	}

	name := shm.Name(cfg.Capture.MappingPrefix, t.PID)
	deadline := time.Now().Add(time.Duration(cfg.Capture.AttachTimeout) * time.Second)

	var mapping shm.Mapping
	var err error
	for {
		mapping, err = shm.Open(name)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			log.Warn("capture loop: ring never appeared", "pid", t.PID, "error", err)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	header := mapping.View()[:ringproto.HeaderSize]
	if err := ringproto.ValidateMagic(header); err != nil {
		log.Warn("capture loop: bad ring magic", "pid", t.PID, "error", err)
		_ = mapping.Close()
		return
	}

	attached[t.PID] = &attachment{mapping: mapping, sessionID: uuid.NewString()}
	targets.SetTarget(&capture.TargetInfo{
		Pid:         t.PID,
		WindowTitle: t.WindowTitle,
		Build:       t.Build,
		VersionName: t.VersionName,
		Attached:    true,
	})
	metrics.AttachedTargets.Inc()
	log.Info("capture loop: attached", "pid", t.PID, "build", t.Build, "version", t.VersionName)
}

// pollOnce drains whatever a's ring currently holds and publishes each entry
// as a CapturedPacket.
func pollOnce(log *slog.Logger, pid uint32, a *attachment, broadcaster *stream.Broadcaster) {
	start := time.Now()
	view := a.mapping.View()
	header := view[:ringproto.HeaderSize]
	data := view[ringproto.HeaderSize:]

	entries, abandoned := ringproto.ReadBatch(header, data)
	if abandoned {
		metrics.RingDrops.WithLabelValues("corrupt_entry").Inc()
		log.Warn("capture loop: abandoned a corrupt ring read", "pid", pid)
	}
	metrics.RingPollDuration.Observe(time.Since(start).Seconds())

	for _, e := range entries {
		direction := capture.Direction_INBOUND
		directionLabel := "inbound"
		if e.Direction == ringproto.DirectionOutbound {
			direction = capture.Direction_OUTBOUND
			directionLabel = "outbound"
		}
		metrics.PacketsCaptured.WithLabelValues(directionLabel).Inc()

		broadcaster.Publish(&capture.CapturedPacket{
			SessionId: a.sessionID,
			Pid:       pid,
			Direction: direction,
			Opcode:    e.Opcode,
			Data:      e.Data,
			Timestamp: timestamppb.New(time.Unix(0, int64(e.Timestamp)*int64(time.Millisecond))),
		})
	}
}
