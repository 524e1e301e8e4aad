package stream

import (
	"context"
	"sync"

	"github.com/wowcap/capture/pb/capture"
)

// GRPCServer implements capture.CaptureStreamServer over a Broadcaster.
type GRPCServer struct {
	capture.UnimplementedCaptureStreamServer

	broadcaster *Broadcaster

	mu      sync.RWMutex
	targets map[uint32]*capture.TargetInfo
}

// NewGRPCServer builds a GRPCServer over broadcaster.
func NewGRPCServer(broadcaster *Broadcaster) *GRPCServer {
	return &GRPCServer{broadcaster: broadcaster, targets: make(map[uint32]*capture.TargetInfo)}
}

// SetTarget records or updates a target's discovery/attach state, read back
// by ListTargets. Called by the controller's discovery/attach loop.
func (s *GRPCServer) SetTarget(t *capture.TargetInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.Pid] = t
}

// RemoveTarget drops a target once its process exits or is detached.
func (s *GRPCServer) RemoveTarget(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, pid)
}

func (s *GRPCServer) ListTargets(ctx context.Context, _ *capture.ListTargetsRequest) (*capture.ListTargetsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*capture.TargetInfo, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t)
	}
	return &capture.ListTargetsResponse{Targets: out}, nil
}

func (s *GRPCServer) Subscribe(req *capture.SubscribeRequest, stream capture.CaptureStream_SubscribeServer) error {
	ch, unsub := s.broadcaster.Subscribe(req.Pid)
	defer unsub()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case pkt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(pkt); err != nil {
				return err
			}
		}
	}
}
