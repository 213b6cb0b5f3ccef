package storage

import (
	"io"
	"os"
)

// File is a ByteStore backed by an image file.
type File struct {
	// Guard, when set, rejects writes while locked.
	Guard interface{ Locked() bool }

	f    *os.File
	size uint32
}

// OpenFile opens or creates the image at path. A new or short image is
// extended to size with fill.
func OpenFile(path string, size uint32, fill byte) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	s := &File{f: f, size: size}
	if cur := info.Size(); cur < int64(size) {
		if err := Fill(s, uint32(cur), size-uint32(cur), fill); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// ReadAt implements ByteStore.
func (s *File) ReadAt(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf), s.size); err != nil {
		return err
	}
	if _, err := s.f.ReadAt(buf, int64(addr)); err != nil && err != io.EOF {
		return &IOError{Op: "read", Addr: addr, Err: err}
	}
	return nil
}

// WriteAt implements ByteStore.
func (s *File) WriteAt(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data), s.size); err != nil {
		return err
	}
	if s.Guard != nil && s.Guard.Locked() {
		return ErrWriteProtected
	}
	if _, err := s.f.WriteAt(data, int64(addr)); err != nil {
		return &IOError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

// Size implements ByteStore.
func (s *File) Size() uint32 {
	return s.size
}

// Close implements io.Closer.
func (s *File) Close() error {
	return s.f.Close()
}
