// Package ata implements the PIO-mode PATA driver of spec.md §6 ("ATA
// (external collaborator)"): primary bus, LBA28 addressing, 512-byte
// sectors, commands 0x20 (read) and 0x30 (write), busy-wait status
// polling, up to 255 sectors per command.
//
// Grounded on the original's ata.rs: identical port layout (0x1F0-0x1F7),
// identical status bit positions, identical 16-bit PIO word transfer
// loop — reimplemented against mach.PortBus so it is exercisable by
// machtest.Bus without real hardware (spec.md §8's ATA round-trip
// scenario).
package ata

import (
	"fmt"

	"github.com/POBIX/ossi/internal/mach"
)

const (
	portData       = 0x1F0
	portError      = 0x1F1
	portSectorCount = 0x1F2
	portLBALow     = 0x1F3
	portLBAMid     = 0x1F4
	portLBAHigh    = 0x1F5
	portDriveHead  = 0x1F6
	portStatus     = 0x1F7
	portCommand    = 0x1F7
)

const (
	statusERR = 1 << 0
	statusDRQ = 1 << 3
	statusSRV = 1 << 4
	statusBSY = 1 << 7
)

const (
	cmdRead  = 0x20
	cmdWrite = 0x30
)

const (
	SectorSize = 512
	// driveMaster selects the primary master drive with LBA addressing
	// (bits 6 and 5 set per the ATA spec; bit 4 = drive select = 0).
	driveMaster = 0xE0
)

// Driver drives the primary ATA bus in PIO mode.
type Driver struct {
	bus mach.PortBus
}

// New returns a Driver over bus.
func New(bus mach.PortBus) *Driver {
	return &Driver{bus: bus}
}

func (d *Driver) waitWhileBusy() {
	for d.bus.In8(portStatus)&statusBSY != 0 {
		d.bus.Wait()
	}
}

func (d *Driver) waitDataRequest() error {
	d.waitWhileBusy()
	status := d.bus.In8(portStatus)
	if status&statusERR != 0 {
		return fmt.Errorf("ata: device error %#x", d.bus.In8(portError))
	}
	for status&statusDRQ == 0 {
		d.bus.Wait()
		status = d.bus.In8(portStatus)
		if status&statusERR != 0 {
			return fmt.Errorf("ata: device error %#x", d.bus.In8(portError))
		}
	}
	return nil
}

func (d *Driver) selectLBA(lba uint32, sectorCount uint8) {
	d.waitWhileBusy()
	d.bus.Out8(portDriveHead, driveMaster|uint8((lba>>24)&0x0F))
	d.bus.Out8(portSectorCount, sectorCount)
	d.bus.Out8(portLBALow, uint8(lba))
	d.bus.Out8(portLBAMid, uint8(lba>>8))
	d.bus.Out8(portLBAHigh, uint8(lba>>16))
}

// ReadSectors reads count sectors starting at lba into buf (must be at
// least count*SectorSize bytes). Per spec.md §7, a non-zero error
// register is an unrecoverable device error: panic.
func (d *Driver) ReadSectors(lba uint32, count uint8, buf []byte) {
	if len(buf) < int(count)*SectorSize {
		panic(fmt.Sprintf("ata: buffer too small for %d sectors", count))
	}
	d.selectLBA(lba, count)
	d.bus.Out8(portCommand, cmdRead)

	for s := 0; s < int(count); s++ {
		if err := d.waitDataRequest(); err != nil {
			panic(err)
		}
		base := s * SectorSize
		for w := 0; w < SectorSize/2; w++ {
			v := d.bus.In16(portData)
			buf[base+w*2] = byte(v)
			buf[base+w*2+1] = byte(v >> 8)
		}
	}
}

// WriteSectors writes count sectors of buf to disk starting at lba.
func (d *Driver) WriteSectors(lba uint32, count uint8, buf []byte) {
	if len(buf) < int(count)*SectorSize {
		panic(fmt.Sprintf("ata: buffer too small for %d sectors", count))
	}
	d.selectLBA(lba, count)
	d.bus.Out8(portCommand, cmdWrite)

	for s := 0; s < int(count); s++ {
		if err := d.waitDataRequest(); err != nil {
			panic(err)
		}
		base := s * SectorSize
		for w := 0; w < SectorSize/2; w++ {
			v := uint16(buf[base+w*2]) | uint16(buf[base+w*2+1])<<8
			d.bus.Out16(portData, v)
		}
	}
}
