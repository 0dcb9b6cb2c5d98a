package multiboot

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRaw(flags, lower, upper uint32) []byte {
	buf := make([]byte, rawSize)
	binary.LittleEndian.PutUint32(buf[0:4], flags)
	binary.LittleEndian.PutUint32(buf[4:8], lower)
	binary.LittleEndian.PutUint32(buf[8:12], upper)
	return buf
}

func TestParseValidRecord(t *testing.T) {
	raw := encodeRaw(flagMemInfo, 640, 65536)
	info, err := Parse(Magic, raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), info.MemLowerKB)
	assert.Equal(t, uint32(65536), info.MemUpperKB)
}

func TestParseBadMagic(t *testing.T) {
	raw := encodeRaw(flagMemInfo, 640, 65536)
	_, err := Parse(0xDEADBEEF, raw)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseMissingMemInfoFlag(t *testing.T) {
	raw := encodeRaw(0, 640, 65536)
	_, err := Parse(Magic, raw)
	assert.ErrorIs(t, err, ErrNoMemInfo)
}

func TestParseTruncatedRecord(t *testing.T) {
	_, err := Parse(Magic, []byte{1, 2, 3})
	assert.Error(t, err)
}
