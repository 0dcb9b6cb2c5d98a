package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/POBIX/ossi/internal/pmm"
)

func newTestManager() *Manager {
	frames := pmm.New()
	frames.ReserveBelow(1) // frame 0 reserved, matching spec's "never map page 0"
	return NewManager(frames)
}

func TestArenaAllocAlignsAndAdvances(t *testing.T) {
	a := NewArena()
	p1 := a.Alloc(10, false)
	p2 := a.Alloc(4, true)
	assert.Equal(t, ArenaStart, p1)
	assert.Equal(t, uint32(0), p2%pageSize)
	assert.Equal(t, a.End(), p2+4)
}

func TestMakePageThenGetPage(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()

	require.NoError(t, m.MakePage(dir, 0x2000, 0x3000, Present|Writable))
	page, ok := m.GetPage(dir, 0x2000)
	require.True(t, ok)
	assert.Equal(t, uint32(0x3000/pageSize), page.Frame)
}

func TestMakePageRejectsDoubleMapping(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()

	require.NoError(t, m.MakePage(dir, 0x2000, 0x3000, Present|Writable))
	err := m.MakePage(dir, 0x2000, 0x4000, Present|Writable)
	assert.Error(t, err)
}

func TestGetPageUnmappedReturnsFalse(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()
	_, ok := m.GetPage(dir, 0x9000)
	assert.False(t, ok)
}

func TestWriteVirtThenReadVirtRoundTrips(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()

	virt := uint32(0x5000)
	require.NoError(t, m.MakePage(dir, virt&^uint32(pageSize-1), 0x10000, Present|Writable))

	data := []byte("hello kernel")
	require.NoError(t, m.WriteVirt(dir, virt, data))

	got, err := m.ReadVirt(dir, virt, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteVirtSpansPageBoundary(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()

	require.NoError(t, m.MakePage(dir, 0x1000, 0x20000, Present|Writable))
	require.NoError(t, m.MakePage(dir, 0x2000, 0x21000, Present|Writable))

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	virt := uint32(0x1000 + pageSize - 8) // crosses from first page into second
	require.NoError(t, m.WriteVirt(dir, virt, data))

	got, err := m.ReadVirt(dir, virt, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestInitKernelDirectoryIdentityMapsKernelImage(t *testing.T) {
	m := newTestManager()
	dir := m.InitKernelDirectory(0x100000, 0x180000)

	page, ok := m.GetPage(dir, 0x100000)
	require.True(t, ok)
	assert.Equal(t, uint32(0x100000/pageSize), page.Frame)
}

func TestEnableReturnsWatermarkAboveArena(t *testing.T) {
	m := newTestManager()
	dir := m.InitKernelDirectory(0x100000, 0x180000)
	watermark := m.Enable(dir)
	assert.Equal(t, uint32(0), watermark%pageSize)
	assert.GreaterOrEqual(t, watermark, ArenaStart)
}

func TestGetFreePageSkipsReservedSlots(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()
	virt, ok := m.GetFreePage(dir)
	require.True(t, ok)
	ti := int(virt >> 22)
	assert.NotEqual(t, RecursiveSlot, ti)
	assert.NotEqual(t, ForeignSlot, ti)
}

func TestNewUserDirectorySharesKernelMappings(t *testing.T) {
	m := newTestManager()
	kdir := m.InitKernelDirectory(0x100000, 0x180000)

	udir := m.NewUserDirectory(kdir)
	page, ok := m.GetPage(udir, 0x100000)
	require.True(t, ok)
	assert.Equal(t, uint32(0x100000/pageSize), page.Frame)
}

func TestTeardownFreesOnlyBitmapBackedTables(t *testing.T) {
	m := newTestManager()
	m.SetHeapInit(func() bool { return true })
	dir := m.newDirectory()

	require.NoError(t, m.MakePage(dir, 0x400000, 0x500000, Present|Writable)) // forces a new table
	require.True(t, dir.present[1])

	m.Teardown(dir)
	assert.False(t, dir.present[1])
	assert.True(t, dir.present[RecursiveSlot], "the recursive slot must survive Teardown")
}

func TestMapFreshAllocatesAndMaps(t *testing.T) {
	m := newTestManager()
	dir := m.newDirectory()

	require.NoError(t, m.MapFresh(dir, 0x6000, Present|Writable))
	_, ok := m.GetPage(dir, 0x6000)
	assert.True(t, ok)
}
