package pic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/POBIX/ossi/internal/mach/machtest"
)

func TestRemapProgramsBothControllers(t *testing.T) {
	bus := machtest.New()
	writes := map[uint16][]uint8{}
	bus.OnOut8 = func(port uint16, v uint8) { writes[port] = append(writes[port], v) }
	p := New(bus)

	p.Remap()

	// Each data port receives ICW2 (the vector base), ICW3, ICW4, then the
	// saved mask (zero on a fresh bus).
	assert.Equal(t, []uint8{MasterVectorBase, cascadeOnIRQ2, icw4_8086, 0}, writes[masterData])
	assert.Equal(t, []uint8{SlaveVectorBase, slaveCascadeID, icw4_8086, 0}, writes[slaveData])
}

func TestRemapPreservesPriorMask(t *testing.T) {
	bus := machtest.New()
	bus.Set8(masterData, 0xFF)
	bus.Set8(slaveData, 0x00)
	p := New(bus)

	p.Remap()

	// Remap's final ICW4 step leaves masterData/slaveData holding icw4_8086
	// mid-sequence; the saved mask is written back as the very last step.
	assert.Equal(t, uint8(0xFF), bus.Get8(masterData))
	assert.Equal(t, uint8(0x00), bus.Get8(slaveData))
}

func TestEndOfInterruptAcksMasterOnly(t *testing.T) {
	bus := machtest.New()
	p := New(bus)

	p.EndOfInterrupt(3)
	assert.Equal(t, uint8(eoiCommand), bus.Get8(masterCommand))
	assert.Equal(t, uint8(0), bus.Get8(slaveCommand))
}

func TestEndOfInterruptAcksBothForSlaveLines(t *testing.T) {
	bus := machtest.New()
	p := New(bus)

	p.EndOfInterrupt(10)
	assert.Equal(t, uint8(eoiCommand), bus.Get8(masterCommand))
	assert.Equal(t, uint8(eoiCommand), bus.Get8(slaveCommand))
}

func TestSetMaskAndIsMasked(t *testing.T) {
	bus := machtest.New()
	p := New(bus)

	assert.False(t, p.IsMasked(0))
	p.SetMask(0, true)
	assert.True(t, p.IsMasked(0))
	p.SetMask(0, false)
	assert.False(t, p.IsMasked(0))
}

func TestSetMaskSlaveLineTouchesSlaveData(t *testing.T) {
	bus := machtest.New()
	p := New(bus)

	p.SetMask(9, true)
	assert.True(t, p.IsMasked(9))
	assert.Equal(t, uint8(1<<1), bus.Get8(slaveData))
	assert.Equal(t, uint8(0), bus.Get8(masterData))
}
