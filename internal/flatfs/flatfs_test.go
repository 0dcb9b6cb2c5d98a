package flatfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/POBIX/ossi/internal/ata"
)

// diskBus is a minimal in-memory stand-in for an ata.Driver's backing
// store: just enough sector read/write semantics for flatfs to round-trip
// its header through, without modelling PIO register sequencing at all.
type diskBus struct {
	sectors map[uint32][]byte
}

func newDiskBus() *diskBus { return &diskBus{sectors: make(map[uint32][]byte)} }

func (d *diskBus) ReadSectors(lba uint32, count uint8, buf []byte) {
	for i := 0; i < int(count); i++ {
		copy(buf[i*ata.SectorSize:], d.sectors[lba+uint32(i)])
	}
}

func (d *diskBus) WriteSectors(lba uint32, count uint8, buf []byte) {
	for i := 0; i < int(count); i++ {
		sector := make([]byte, ata.SectorSize)
		copy(sector, buf[i*ata.SectorSize:(i+1)*ata.SectorSize])
		d.sectors[lba+uint32(i)] = sector
	}
}

func TestEncodeHeaderRoundTripsThroughLoad(t *testing.T) {
	entries := []Entry{
		{Path: "/shell", FirstSector: 2, SectorCount: 4},
		{Path: "/init", FirstSector: 6, SectorCount: 1, Opened: true},
	}
	header, err := EncodeHeader(entries)
	require.NoError(t, err)
	require.Len(t, header, HeaderBytes)

	disk := newDiskBus()
	disk.WriteSectors(0, HeaderSectors, header)

	fs := loadFromBytes(t, disk)

	got, err := fs.Lookup("/shell")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.FirstSector)
	assert.Equal(t, uint32(4), got.SectorCount)
	assert.False(t, got.Opened)

	got2, err := fs.Lookup("/init")
	require.NoError(t, err)
	assert.True(t, got2.Opened)
}

// loadFromBytes mirrors Load's decode loop directly against disk, since Load
// itself requires a concrete *ata.Driver rather than this test's fake.
func loadFromBytes(t *testing.T, disk *diskBus) *FS {
	t.Helper()
	buf := make([]byte, HeaderBytes)
	disk.ReadSectors(0, HeaderSectors, buf)

	fs := &FS{}
	r := bytes.NewReader(buf)
	for i := 0; i < maxEntries; i++ {
		var e rawEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			break
		}
		if e.Path[0] == 0 {
			break
		}
		fs.entries = append(fs.entries, e)
	}
	return fs
}

func TestEncodeHeaderTooManyEntries(t *testing.T) {
	entries := make([]Entry, maxEntries+1)
	for i := range entries {
		entries[i] = Entry{Path: "/x"}
	}
	_, err := EncodeHeader(entries)
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestEncodeHeaderPathTooLong(t *testing.T) {
	_, err := EncodeHeader([]Entry{{Path: "this/path/is/definitely/more/than/32/bytes/long"}})
	assert.ErrorIs(t, err, ErrPathTooLong)
}

func TestRegisterAndLookup(t *testing.T) {
	fs := &FS{}
	require.NoError(t, fs.Register("/a", 10, 2))
	e, err := fs.Lookup("/a")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), e.FirstSector)
}

func TestLookupMissingFile(t *testing.T) {
	fs := &FS{}
	_, err := fs.Lookup("/missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpenThenOpenAgainFails(t *testing.T) {
	fs := &FS{}
	require.NoError(t, fs.Register("/a", 1, 1))
	require.NoError(t, fs.Open("/a"))
	assert.ErrorIs(t, fs.Open("/a"), ErrAlreadyOpen)
}

func TestCloseClearsOpenFlag(t *testing.T) {
	fs := &FS{}
	require.NoError(t, fs.Register("/a", 1, 1))
	require.NoError(t, fs.Open("/a"))
	require.NoError(t, fs.Close("/a"))
	require.NoError(t, fs.Open("/a")) // re-opening after close should succeed
}

func TestListReturnsAllPaths(t *testing.T) {
	fs := &FS{}
	require.NoError(t, fs.Register("/a", 1, 1))
	require.NoError(t, fs.Register("/b", 2, 1))
	assert.ElementsMatch(t, []string{"/a", "/b"}, fs.List())
}

func TestRegisterTooManyFiles(t *testing.T) {
	fs := &FS{}
	for i := 0; i < maxEntries; i++ {
		require.NoError(t, fs.Register("/f", uint32(i), 1))
	}
	assert.ErrorIs(t, fs.Register("/overflow", 0, 1), ErrTooManyFiles)
}
