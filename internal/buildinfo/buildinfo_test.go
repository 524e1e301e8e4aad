package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFromFileVersion_MasksToLow16Bits(t *testing.T) {
	// 3.3.5.12340 style version: LS word holds the build, MS word is unused
	// by this extraction.
	info := FixedFileInfo{FileVersionMS: 0x00030003, FileVersionLS: 0x00050000 | 12340}
	assert.Equal(t, uint32(12340), BuildFromFileVersion(info))
}

func TestBuildFromFileVersion_IgnoresHighWord(t *testing.T) {
	info := FixedFileInfo{FileVersionLS: 0xABCD0000 | 5875}
	assert.Equal(t, uint32(5875), BuildFromFileVersion(info))
}

func TestBuildFromFileVersion_ZeroStaysZero(t *testing.T) {
	assert.Equal(t, uint32(0), BuildFromFileVersion(FixedFileInfo{}))
}
