package nor

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/storage"
)

// Store adapts a Chip to storage.Flash. Every command waits for the
// device to leave its busy state, bounded by BusyTimeout, and every page
// program is followed by SettleDelay.
type Store struct {
	Chip     Chip
	Capacity uint32

	BusyTimeout  time.Duration
	PollInterval time.Duration
	SettleDelay  time.Duration

	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Defaults for Store timing.
const (
	DefaultBusyTimeout  = 5 * time.Millisecond
	DefaultPollInterval = 250 * time.Microsecond
	DefaultSettleDelay  = 3 * time.Millisecond
)

// NewStore creates a Store with default timing.
func NewStore(chip Chip, capacity uint32) *Store {
	return &Store{
		Chip:         chip,
		Capacity:     capacity,
		BusyTimeout:  DefaultBusyTimeout,
		PollInterval: DefaultPollInterval,
		SettleDelay:  DefaultSettleDelay,
		Sleep:        time.Sleep,
	}
}

func (s *Store) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
	} else {
		time.Sleep(d)
	}
}

// waitReady polls the status register until the device is idle.
func (s *Store) waitReady() error {
	polls := 0
	if s.PollInterval > 0 {
		polls = int(s.BusyTimeout / s.PollInterval)
	}
	for n := 0; ; n++ {
		status, err := s.Chip.Status()
		if err != nil {
			return &storage.IOError{Op: "status", Err: err}
		}
		if status&StatusWIP == 0 {
			return nil
		}
		if n >= polls {
			return storage.ErrBusy
		}
		s.sleep(s.PollInterval)
	}
}

// Size implements storage.ByteStore.
func (s *Store) Size() uint32 {
	return s.Capacity
}

// SectorSize implements storage.Flash.
func (s *Store) SectorSize() uint32 {
	return SectorSize
}

// Busy implements storage.Flash.
func (s *Store) Busy() (bool, error) {
	status, err := s.Chip.Status()
	if err != nil {
		return false, &storage.IOError{Op: "status", Err: err}
	}
	return status&StatusWIP != 0, nil
}

// ReadAt implements storage.ByteStore.
func (s *Store) ReadAt(addr uint32, buf []byte) error {
	if uint64(addr)+uint64(len(buf)) > uint64(s.Capacity) {
		return &storage.RangeError{Addr: addr, Len: len(buf), Size: s.Capacity}
	}
	if err := s.waitReady(); err != nil {
		return err
	}
	if err := s.Chip.Read(addr, buf); err != nil {
		return &storage.IOError{Op: "read", Addr: addr, Err: err}
	}
	return nil
}

// WriteAt implements storage.ByteStore. Data is split at page boundaries.
func (s *Store) WriteAt(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > uint64(s.Capacity) {
		return &storage.RangeError{Addr: addr, Len: len(data), Size: s.Capacity}
	}
	for len(data) > 0 {
		n := PageSize - int(addr%PageSize)
		if n > len(data) {
			n = len(data)
		}
		if err := s.waitReady(); err != nil {
			return err
		}
		if err := s.Chip.WriteEnable(); err != nil {
			return &storage.IOError{Op: "write enable", Addr: addr, Err: err}
		}
		if err := s.Chip.ProgramPage(addr, data[:n]); err != nil {
			return &storage.IOError{Op: "program", Addr: addr, Err: err}
		}
		s.sleep(s.SettleDelay)
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

// EraseSector implements storage.Flash. It returns once the command is
// issued; the device stays busy until the erase completes.
func (s *Store) EraseSector(addr uint32) error {
	if addr >= s.Capacity {
		return &storage.RangeError{Addr: addr, Size: s.Capacity}
	}
	addr -= addr % SectorSize
	if err := s.waitReady(); err != nil {
		return err
	}
	if err := s.Chip.WriteEnable(); err != nil {
		return &storage.IOError{Op: "write enable", Addr: addr, Err: err}
	}
	glog.V(2).Infof("erase sector 0x%x", addr)
	if err := s.Chip.EraseSector(addr); err != nil {
		return &storage.IOError{Op: "erase sector", Addr: addr, Err: err}
	}
	return nil
}

// EraseAll implements storage.Flash. Like EraseSector it doesn't wait for
// completion.
func (s *Store) EraseAll() error {
	if err := s.waitReady(); err != nil {
		return err
	}
	if err := s.Chip.WriteEnable(); err != nil {
		return &storage.IOError{Op: "write enable", Err: err}
	}
	glog.Info("bulk erase")
	if err := s.Chip.EraseChip(); err != nil {
		return &storage.IOError{Op: "bulk erase", Err: err}
	}
	return nil
}
