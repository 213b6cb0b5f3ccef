package nor

import (
	"errors"

	"github.com/robotalks/iris/pkg/storage"
)

var (
	// ErrWriteDisabled indicates a program or erase without write enable.
	ErrWriteDisabled = errors.New("write enable latch not set")
	// ErrDeviceBusy indicates a command issued while the device is busy.
	ErrDeviceBusy = errors.New("device busy")
)

// Sim emulates a NOR Chip on top of a ByteStore: programming only clears
// bits, erasing sets them, and program/erase leave the device busy for a
// number of status polls.
type Sim struct {
	Mem storage.ByteStore
	// ProgramPolls is the number of status reads reporting busy after a
	// page program.
	ProgramPolls int
	// ErasePolls is the same for erase commands.
	ErasePolls int
	ID         [3]byte

	busy int
	wel  bool

	// Programs and Erases count completed commands.
	Programs int
	Erases   int
}

// NewSim creates a Sim over an erased in-memory device of capacity bytes.
func NewSim(capacity uint32) *Sim {
	return NewSimOn(storage.NewMem(capacity, storage.ErasedByte))
}

// NewSimOn creates a Sim over mem, typically an image file.
func NewSimOn(mem storage.ByteStore) *Sim {
	return &Sim{Mem: mem, ID: [3]byte{0x01, 0x02, 0x20}}
}

// ReadID implements Chip.
func (s *Sim) ReadID() ([3]byte, error) {
	return s.ID, nil
}

// Status implements Chip.
func (s *Sim) Status() (byte, error) {
	var status byte
	if s.wel {
		status |= StatusWEL
	}
	if s.busy > 0 {
		s.busy--
		status |= StatusWIP
	}
	return status, nil
}

// WriteEnable implements Chip.
func (s *Sim) WriteEnable() error {
	if s.busy > 0 {
		return ErrDeviceBusy
	}
	s.wel = true
	return nil
}

func (s *Sim) begin() error {
	if s.busy > 0 {
		return ErrDeviceBusy
	}
	if !s.wel {
		return ErrWriteDisabled
	}
	s.wel = false
	return nil
}

// ProgramPage implements Chip.
func (s *Sim) ProgramPage(addr uint32, data []byte) error {
	if err := s.begin(); err != nil {
		return err
	}
	if addr%PageSize+uint32(len(data)) > PageSize {
		return errors.New("program crosses page boundary")
	}
	cur := make([]byte, len(data))
	if err := s.Mem.ReadAt(addr, cur); err != nil {
		return err
	}
	for i, b := range data {
		cur[i] &= b
	}
	if err := s.Mem.WriteAt(addr, cur); err != nil {
		return err
	}
	s.busy = s.ProgramPolls
	s.Programs++
	return nil
}

// Read implements Chip.
func (s *Sim) Read(addr uint32, buf []byte) error {
	if s.busy > 0 {
		return ErrDeviceBusy
	}
	return s.Mem.ReadAt(addr, buf)
}

// EraseSector implements Chip.
func (s *Sim) EraseSector(addr uint32) error {
	if err := s.begin(); err != nil {
		return err
	}
	addr -= addr % SectorSize
	n := uint32(SectorSize)
	if size := s.Mem.Size(); addr+n > size {
		n = size - addr
	}
	if err := storage.Fill(s.Mem, addr, n, storage.ErasedByte); err != nil {
		return err
	}
	s.busy = s.ErasePolls
	s.Erases++
	return nil
}

// EraseChip implements Chip.
func (s *Sim) EraseChip() error {
	if err := s.begin(); err != nil {
		return err
	}
	if err := storage.Fill(s.Mem, 0, s.Mem.Size(), storage.ErasedByte); err != nil {
		return err
	}
	s.busy = s.ErasePolls
	s.Erases++
	return nil
}
