package nor

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Command set of 4-byte addressed SPI NOR devices (S25FL512S family).
const (
	cmdReadID       = 0x9F
	cmdReadStatus1  = 0x05
	cmdWriteEnable  = 0x06
	cmdPageProgram4 = 0x12
	cmdRead4        = 0x13
	cmdSectorErase4 = 0xDC
	cmdBulkErase    = 0x60
)

// Status register bits.
const (
	StatusWIP byte = 0x01
	StatusWEL byte = 0x02
)

// Geometry of the reference device.
const (
	PageSize   = 512
	SectorSize = 256 * 1024
	Capacity   = 64 * 1024 * 1024
)

const (
	cmdBytes = 5 // opcode + 32-bit address
	maxTx    = 4096
)

// Chip is the raw command interface of a NOR device.
type Chip interface {
	ReadID() ([3]byte, error)
	Status() (byte, error)
	WriteEnable() error
	// ProgramPage programs data, which must not cross a page boundary.
	ProgramPage(addr uint32, data []byte) error
	Read(addr uint32, buf []byte) error
	EraseSector(addr uint32) error
	EraseChip() error
}

var knownIDs = map[[3]byte]string{
	{0x01, 0x02, 0x20}: "Cypress S25FL512S",
	{0xEF, 0x40, 0x20}: "Winbond W25Q512JV",
	{0x20, 0xBA, 0x20}: "Micron MT25QL512",
}

// DeviceName names a JEDEC id.
func DeviceName(id [3]byte) (string, bool) {
	name, ok := knownIDs[id]
	return name, ok
}

// Device drives a NOR chip over SPI with a GPIO chip select.
type Device struct {
	Conn spi.Conn
	CS   gpio.PinOut
}

// New creates a Device.
func New(conn spi.Conn, cs gpio.PinOut) *Device {
	return &Device{Conn: conn, CS: cs}
}

func (d *Device) tx(buf []byte) error {
	if err := d.CS.Out(gpio.Low); err != nil {
		return err
	}
	txErr := d.Conn.Tx(buf, buf)
	if err := d.CS.Out(gpio.High); err != nil {
		return err
	}
	return txErr
}

func putCmd(buf []byte, cmd byte, addr uint32) {
	buf[0] = cmd
	buf[1] = byte(addr >> 24)
	buf[2] = byte(addr >> 16)
	buf[3] = byte(addr >> 8)
	buf[4] = byte(addr)
}

// ReadID implements Chip.
func (d *Device) ReadID() (id [3]byte, err error) {
	buf := []byte{cmdReadID, 0, 0, 0}
	if err = d.tx(buf); err != nil {
		return
	}
	copy(id[:], buf[1:])
	return
}

// Status implements Chip.
func (d *Device) Status() (byte, error) {
	buf := []byte{cmdReadStatus1, 0}
	if err := d.tx(buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// WriteEnable implements Chip.
func (d *Device) WriteEnable() error {
	return d.tx([]byte{cmdWriteEnable})
}

// ProgramPage implements Chip.
func (d *Device) ProgramPage(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if addr%PageSize+uint32(len(data)) > PageSize {
		return fmt.Errorf("program 0x%x+%d crosses page boundary", addr, len(data))
	}
	buf := make([]byte, cmdBytes+len(data))
	putCmd(buf, cmdPageProgram4, addr)
	copy(buf[cmdBytes:], data)
	return d.tx(buf)
}

// Read implements Chip. Large reads are split to respect the maximum
// SPI transaction size.
func (d *Device) Read(addr uint32, out []byte) error {
	const maxData = maxTx - cmdBytes
	buf := make([]byte, maxTx)
	for off := 0; off < len(out); {
		chunk := len(out) - off
		if chunk > maxData {
			chunk = maxData
		}
		pkt := buf[:cmdBytes+chunk]
		for i := range pkt {
			pkt[i] = 0
		}
		putCmd(pkt, cmdRead4, addr+uint32(off))
		if err := d.tx(pkt); err != nil {
			return err
		}
		copy(out[off:], pkt[cmdBytes:])
		off += chunk
	}
	return nil
}

// EraseSector implements Chip. Write enable must be set before.
func (d *Device) EraseSector(addr uint32) error {
	buf := make([]byte, cmdBytes)
	putCmd(buf, cmdSectorErase4, addr)
	return d.tx(buf)
}

// EraseChip implements Chip. Write enable must be set before.
func (d *Device) EraseChip() error {
	return d.tx([]byte{cmdBulkErase})
}
