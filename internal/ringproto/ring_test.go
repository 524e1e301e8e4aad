package ringproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(capacity uint32) (header, data []byte) {
	header = make([]byte, HeaderSize)
	data = make([]byte, capacity)
	InitHeader(header, capacity, 12340)
	return header, data
}

func TestInitHeader_StampsMagicAndCapacity(t *testing.T) {
	header, _ := newRing(64)
	require.NoError(t, ValidateMagic(header))
	assert.Equal(t, uint32(64), LoadCapacity(header))
	assert.Equal(t, uint32(0), LoadWritePos(header))
	assert.Equal(t, uint32(0), LoadReadPos(header))
	assert.Equal(t, uint32(0), LoadAgentReady(header))
	assert.Equal(t, uint32(12340), LoadBuildNumber(header))
}

func TestValidateMagic_RejectsForeignMapping(t *testing.T) {
	buf := make([]byte, HeaderSize)
	err := ValidateMagic(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

// Single packet round trip.
func TestRoundTrip_SinglePacket(t *testing.T) {
	header, data := newRing(4096)

	res := Write(header, data, DirectionOutbound, 0x1DC, []byte{0x12, 0x34, 0x56}, 1000)
	require.Equal(t, Written, res)

	entries, abandoned := ReadBatch(header, data)
	require.False(t, abandoned)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, DirectionOutbound, got.Direction)
	assert.Equal(t, uint32(0x1DC), got.Opcode)
	assert.Equal(t, []byte{0x12, 0x34, 0x56}, got.Data)

	assert.Equal(t, LoadWritePos(header), LoadReadPos(header))
}

// Scenario: round trip for a sequence of N writes preserves order and
// byte-identical payloads, the ring's round-trip invariant.
func TestRoundTrip_SequencePreservesOrderAndContent(t *testing.T) {
	header, data := newRing(4096)

	type want struct {
		direction byte
		opcode    uint32
		payload   []byte
	}
	wants := []want{
		{DirectionInbound, 1, []byte("a")},
		{DirectionOutbound, 2, []byte("bb")},
		{DirectionInbound, 3, []byte{}},
		{DirectionOutbound, 4, []byte("dddd")},
	}

	var ts uint32 = 100
	for _, w := range wants {
		res := Write(header, data, w.direction, w.opcode, w.payload, ts)
		require.Equal(t, Written, res)
		ts += 5
	}

	entries, abandoned := ReadBatch(header, data)
	require.False(t, abandoned)
	require.Len(t, entries, len(wants))

	prevTs := uint32(0)
	for i, e := range entries {
		assert.Equal(t, wants[i].direction, e.Direction)
		assert.Equal(t, wants[i].opcode, e.Opcode)
		if len(wants[i].payload) == 0 {
			assert.Empty(t, e.Data)
		} else {
			assert.Equal(t, wants[i].payload, e.Data)
		}
		assert.GreaterOrEqual(t, e.Timestamp, prevTs)
		prevTs = e.Timestamp
	}
}

// Wrap correctness with a precomputed expected
// write_pos.
func TestWrap_AdvancesWritePosAcrossBoundary(t *testing.T) {
	header, data := newRing(64)
	PutWritePos(header, 60)
	PutReadPos(header, 60)

	payload := make([]byte, 8)
	for i := range payload {
		payload[i] = byte(i + 1)
	}

	res := Write(header, data, DirectionOutbound, 42, payload, 1)
	require.Equal(t, Written, res)
	assert.Equal(t, uint32(24), LoadWritePos(header)) // (60+28) % 64

	entries, abandoned := ReadBatch(header, data)
	require.False(t, abandoned)
	require.Len(t, entries, 1)
	assert.Equal(t, payload, entries[0].Data)
}

// Overflow drop leaves state untouched.
func TestOverflow_DropsWithoutMutatingState(t *testing.T) {
	header, data := newRing(32)

	// Occupy 24 bytes (data_len=4, aligned total=24).
	res := Write(header, data, DirectionOutbound, 1, []byte{1, 2, 3, 4}, 1)
	require.Equal(t, Written, res)

	beforeWrite := LoadWritePos(header)
	beforeRead := LoadReadPos(header)
	snapshot := append([]byte(nil), data...)

	// entry_total for data_len=16 is 36, which exceeds capacity 32 outright
	// (DroppedTooLarge) as well as available free space (DroppedFull); both
	// are "drop, state unchanged" outcomes.
	res = Write(header, data, DirectionOutbound, 2, make([]byte, 16), 2)
	assert.NotEqual(t, Written, res)

	assert.Equal(t, beforeWrite, LoadWritePos(header))
	assert.Equal(t, beforeRead, LoadReadPos(header))
	assert.Equal(t, snapshot, data)
}

func TestOverflow_DropsWhenFreeSpaceInsufficientButEntryFitsCapacity(t *testing.T) {
	header, data := newRing(48)

	// Occupy 24 bytes, leaving 48-24-1 = 23 bytes free.
	res := Write(header, data, DirectionOutbound, 1, []byte{1, 2, 3, 4}, 1)
	require.Equal(t, Written, res)

	beforeWrite := LoadWritePos(header)

	// entry_total for data_len=8 is 28, fits in capacity but not in the 23
	// free bytes remaining -> DroppedFull, not DroppedTooLarge.
	res = Write(header, data, DirectionOutbound, 2, make([]byte, 8), 2)
	assert.Equal(t, DroppedFull, res)
	assert.Equal(t, beforeWrite, LoadWritePos(header))
}

// Empty vs full disambiguation: a successful write never makes write_pos
// equal read_pos while data remains unread.
func TestEmptyVsFull_NeverEqualsWithDataPresent(t *testing.T) {
	header, data := newRing(32)

	// Fill until no more entries of this size fit.
	count := 0
	for {
		res := Write(header, data, DirectionOutbound, uint32(count), []byte{1, 2, 3, 4}, uint32(count))
		if res != Written {
			break
		}
		count++
		assert.NotEqual(t, LoadReadPos(header), LoadWritePos(header))
	}
	assert.Greater(t, count, 0)
}

// Entry alignment: after every successful write, write_pos is a multiple
// of 4.
func TestEntryAlignment_WritePosAlwaysMultipleOfFour(t *testing.T) {
	header, data := newRing(4096)
	payloadLens := []int{0, 1, 2, 3, 4, 5, 7, 9, 13}
	for i, n := range payloadLens {
		res := Write(header, data, DirectionInbound, uint32(i), make([]byte, n), uint32(i))
		require.Equal(t, Written, res)
		assert.Equal(t, uint32(0), LoadWritePos(header)%4)
	}
}

// Wrap correctness: ringWrite/ringRead are mutual inverses for every
// (offset, length) pair with offset+length > capacity.
func TestRingWriteRead_MutualInverseAcrossWrap(t *testing.T) {
	const capacity = 16
	for offset := 0; offset < capacity; offset++ {
		for length := 1; length <= capacity; length++ {
			data := make([]byte, capacity)
			src := make([]byte, length)
			for i := range src {
				src[i] = byte(i + 1)
			}
			ringWrite(data, capacity, offset, src)

			dst := make([]byte, length)
			ringRead(data, capacity, offset, dst)

			assert.Equal(t, src, dst, "offset=%d length=%d", offset, length)
		}
	}
}

func TestReadBatch_CorruptDescriptorAbandonsRemainder(t *testing.T) {
	header, data := newRing(64)
	res := Write(header, data, DirectionOutbound, 1, []byte{1, 2}, 1)
	require.Equal(t, Written, res)

	// Corrupt the just-written descriptor's total_size field in place.
	PutWritePos(header, LoadWritePos(header)) // no-op, keep linter happy
	corruptAt := 0
	data[corruptAt] = 0xFF
	data[corruptAt+1] = 0xFF
	data[corruptAt+2] = 0xFF
	data[corruptAt+3] = 0xFF

	entries, abandoned := ReadBatch(header, data)
	assert.True(t, abandoned)
	assert.Empty(t, entries)
}
