package inject

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModule builds a minimal in-memory image exposing just enough of a PE
// export directory to exercise findExportRemote, keyed by export name to
// export RVA.
type fakeModule struct {
	mem map[uintptr]byte
}

func newFakeModule() *fakeModule {
	return &fakeModule{mem: make(map[uintptr]byte)}
}

func (m *fakeModule) putU32(addr uintptr, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	for i, c := range b {
		m.mem[addr+uintptr(i)] = c
	}
}

func (m *fakeModule) putBytes(addr uintptr, b []byte) {
	for i, c := range b {
		m.mem[addr+uintptr(i)] = c
	}
}

func (m *fakeModule) reader() remoteReader {
	return func(addr uintptr, size int) ([]byte, error) {
		out := make([]byte, size)
		for i := 0; i < size; i++ {
			v, ok := m.mem[addr+uintptr(i)]
			if !ok {
				return nil, fmt.Errorf("unmapped address 0x%X", addr+uintptr(i))
			}
			out[i] = v
		}
		return out, nil
	}
}

// buildExportTable writes a module at the given base address exporting
// every name in exports, following the same field layout findExportRemote
// reads (moduleBase+0x3C -> e_lfanew, NT+0x78 -> export dir RVA, etc.).
func buildExportTable(base uintptr, exports map[string]uint32) *fakeModule {
	m := newFakeModule()

	const ntHeadersRVA = 0x200
	const exportDirRVA = 0x1000
	const namesArrayRVA = 0x2000
	const ordinalsArrayRVA = 0x2100
	const functionsArrayRVA = 0x2200
	const stringsRVA = 0x3000

	m.putU32(base+0x3C, ntHeadersRVA)
	m.putU32(base+ntHeadersRVA+0x78, exportDirRVA)

	exportDir := base + exportDirRVA
	m.putU32(exportDir+0x18, uint32(len(exports)))
	m.putU32(exportDir+0x1C, functionsArrayRVA)
	m.putU32(exportDir+0x20, namesArrayRVA)
	m.putU32(exportDir+0x24, ordinalsArrayRVA)

	i := 0
	stringOffset := uint32(0)
	for name, funcRVA := range exports {
		nameAddr := base + stringsRVA + uintptr(stringOffset)
		m.putBytes(nameAddr, append([]byte(name), 0))
		m.putU32(base+namesArrayRVA+uintptr(i*4), uint32(stringsRVA)+stringOffset)
		m.putU32(base+ordinalsArrayRVA+uintptr(i*2), uint32(i))
		m.putU32(base+functionsArrayRVA+uintptr(i*4), funcRVA)

		stringOffset += uint32(len(name) + 1)
		i++
	}

	return m
}

func TestFindExportRemote_FindsMatchingExport(t *testing.T) {
	const base = 0x10000000
	m := buildExportTable(base, map[string]uint32{
		"LoadLibraryW": 0x4567,
		"GetProcAddr":  0x1111,
	})

	addr, err := findExportRemote(m.reader(), base, "LoadLibraryW")
	require.NoError(t, err)
	assert.Equal(t, base+0x4567, addr)
}

func TestFindExportRemote_MissingExportErrors(t *testing.T) {
	const base = 0x10000000
	m := buildExportTable(base, map[string]uint32{"Something": 0x10})

	_, err := findExportRemote(m.reader(), base, "LoadLibraryW")
	assert.Error(t, err)
}

func TestFindExportRemote_NoExportDirectoryErrors(t *testing.T) {
	const base = 0x10000000
	m := newFakeModule()
	m.putU32(base+0x3C, 0x200)
	m.putU32(base+0x200+0x78, 0) // no export directory

	_, err := findExportRemote(m.reader(), base, "LoadLibraryW")
	assert.Error(t, err)
}
