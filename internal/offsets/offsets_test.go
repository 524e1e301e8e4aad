package offsets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_KnownBuilds(t *testing.T) {
	for _, build := range []uint32{5875, 8606, 12340, 15595} {
		r, err := Lookup(build)
		require.NoError(t, err)
		assert.NotZero(t, r.SendPacketRVA)
		assert.NotZero(t, r.RecvHandlerRVA)
		assert.GreaterOrEqual(t, r.SendHookSize, 5)
		assert.LessOrEqual(t, r.SendHookSize, 16)
		assert.GreaterOrEqual(t, r.RecvHookSize, 5)
		assert.LessOrEqual(t, r.RecvHookSize, 16)
	}
}

func TestLookup_VanillaHasAsymmetricHookSizes(t *testing.T) {
	r, err := Lookup(5875)
	require.NoError(t, err)
	assert.Equal(t, 6, r.SendHookSize)
	assert.Equal(t, 9, r.RecvHookSize)
}

func TestLookup_UnsupportedBuild(t *testing.T) {
	_, err := Lookup(99999)
	var target *ErrUnsupportedBuild
	require.True(t, errors.As(err, &target))
	assert.Equal(t, uint32(99999), target.Build)
}

func TestLookup_ZeroIsAlwaysUnsupported(t *testing.T) {
	_, err := Lookup(0)
	assert.Error(t, err)
}

func TestResolve_AddsBaseToEveryRVA(t *testing.T) {
	const base = 0x00400000
	resolved, err := Resolve(12340, base)
	require.NoError(t, err)
	assert.Equal(t, base+0x003653B0, resolved.SendPacket)
	assert.Equal(t, base+0x0036DC80, resolved.RecvHandler)
	assert.Equal(t, base+0x00879CF4, resolved.OpcodeTable)
	assert.Equal(t, base+0x005E0E24, resolved.OpcodeNames)
	assert.Equal(t, "3.3.5a (Wrath of the Lich King)", resolved.VersionName)
}

func TestResolve_ZeroRVALeavesFieldZero(t *testing.T) {
	resolved, err := Resolve(5875, 0x10000)
	require.NoError(t, err)
	assert.Zero(t, resolved.OpcodeNames)
}

func TestVersionName_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, "1.12.1 (Vanilla)", VersionName(5875))
	assert.Equal(t, "Unknown", VersionName(0))
	assert.Equal(t, "Unknown (build 42)", VersionName(42))
}

func TestSupportedBuilds_MatchesTableSize(t *testing.T) {
	builds := SupportedBuilds()
	assert.Len(t, builds, 4)
	assert.Contains(t, builds, uint32(5875))
	assert.Contains(t, builds, uint32(15595))
}
