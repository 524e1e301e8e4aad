package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wowcap/capture/pb/capture"
)

func runBroadcaster(t *testing.T, b *Broadcaster) func() {
	stop := make(chan struct{})
	go b.Run(stop)
	t.Cleanup(func() { close(stop) })
	return func() { close(stop) }
}

func TestSubscribe_ReceivesPublishedPacket(t *testing.T) {
	b := New(nil, 8, nil)
	runBroadcaster(t, b)

	ch, unsub := b.Subscribe(0)
	defer unsub()

	// Give Run a moment to register the subscriber before publishing.
	time.Sleep(10 * time.Millisecond)
	b.Publish(&capture.CapturedPacket{Pid: 123, Opcode: 0x1})

	select {
	case pkt := <-ch:
		assert.Equal(t, uint32(123), pkt.Pid)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestSubscribe_PidScopingFiltersOtherTargets(t *testing.T) {
	b := New(nil, 8, nil)
	runBroadcaster(t, b)

	ch, unsub := b.Subscribe(999)
	defer unsub()

	time.Sleep(10 * time.Millisecond)
	b.Publish(&capture.CapturedPacket{Pid: 111})

	select {
	case <-ch:
		t.Fatal("subscriber should not have received a packet for a different pid")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublish_DropsWhenSubscriberChannelFull(t *testing.T) {
	var drops int
	b := New(nil, 1, func() { drops++ })
	runBroadcaster(t, b)

	ch, unsub := b.Subscribe(0)
	defer unsub()

	time.Sleep(10 * time.Millisecond)
	b.Publish(&capture.CapturedPacket{Pid: 1})
	b.Publish(&capture.CapturedPacket{Pid: 1})
	b.Publish(&capture.CapturedPacket{Pid: 1})

	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, drops, 0)
	require.Len(t, ch, 1)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New(nil, 8, nil)
	runBroadcaster(t, b)

	ch, unsub := b.Subscribe(0)
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was never closed")
	}
}

func TestSubscriberCount_TracksRegisterUnregister(t *testing.T) {
	b := New(nil, 8, nil)
	runBroadcaster(t, b)

	_, unsub1 := b.Subscribe(0)
	_, unsub2 := b.Subscribe(0)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, b.SubscriberCount())

	unsub1()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, b.SubscriberCount())
	unsub2()
}
