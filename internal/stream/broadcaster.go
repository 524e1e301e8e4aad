// Package stream fans captured packets out to external consumers over
// WebSocket and gRPC: a central register/unregister/broadcast loop feeding
// non-blocking per-subscriber channels so one slow consumer can never stall
// capture.
package stream

import (
	"log/slog"
	"sync"

	"github.com/wowcap/capture/pb/capture"
)

// Subscriber is one consumer's inbound channel. Publish never blocks on it:
// a full channel means a dropped packet for that subscriber, counted but
// not otherwise acted on.
type Subscriber struct {
	ch  chan *capture.CapturedPacket
	pid uint32 // 0 means "all targets"
}

// Broadcaster owns the subscriber set and the single goroutine that mutates
// it: subscribers register and unregister over channels, and only Run
// changes the map. Run holds mu while it handles each event so that
// SubscriberCount can read the set from other goroutines.
type Broadcaster struct {
	log        *slog.Logger
	bufferSize int

	register   chan *Subscriber
	unregister chan *Subscriber
	publish    chan *capture.CapturedPacket

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}

	onDrop func()
}

// New creates a Broadcaster. onDrop, if non-nil, is called once per dropped
// packet (wired to metrics.FanOutDrops.Inc by the caller).
func New(log *slog.Logger, bufferSize int, onDrop func()) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Broadcaster{
		log:         log,
		bufferSize:  bufferSize,
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		publish:     make(chan *capture.CapturedPacket, 1024),
		subscribers: make(map[*Subscriber]struct{}),
		onDrop:      onDrop,
	}
}

// Run processes register/unregister/publish events until stop is closed.
// Call it from its own goroutine.
func (b *Broadcaster) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			b.mu.Lock()
			for s := range b.subscribers {
				close(s.ch)
			}
			b.subscribers = make(map[*Subscriber]struct{})
			b.mu.Unlock()
			return

		case s := <-b.register:
			b.mu.Lock()
			b.subscribers[s] = struct{}{}
			b.mu.Unlock()

		case s := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.subscribers[s]; ok {
				delete(b.subscribers, s)
				close(s.ch)
			}
			b.mu.Unlock()

		case pkt := <-b.publish:
			b.mu.Lock()
			for s := range b.subscribers {
				if s.pid != 0 && s.pid != pkt.Pid {
					continue
				}
				select {
				case s.ch <- pkt:
				default:
					if b.onDrop != nil {
						b.onDrop()
					}
					if b.log != nil {
						b.log.Warn("dropping packet for slow subscriber", "pid", pkt.Pid)
					}
				}
			}
			b.mu.Unlock()
		}
	}
}

// Subscribe registers a new subscriber scoped to pid (0 for every target)
// and returns its channel plus an unsubscribe func.
func (b *Broadcaster) Subscribe(pid uint32) (<-chan *capture.CapturedPacket, func()) {
	s := &Subscriber{ch: make(chan *capture.CapturedPacket, b.bufferSize), pid: pid}
	b.register <- s
	return s.ch, func() { b.unregister <- s }
}

// Publish enqueues pkt for fan-out. It never blocks on a slow subscriber,
// only on the internal publish queue, which is sized generously since the
// Run loop drains it continuously.
func (b *Broadcaster) Publish(pkt *capture.CapturedPacket) {
	b.publish <- pkt
}

// SubscriberCount reports how many consumers are currently attached, for
// diagnostics and tests.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
