package storage

import "sync"

// WriteProtector controls the write protection of a memory region.
type WriteProtector interface {
	Unlock()
	Lock()
}

// Protected opens the write protection only for the duration of each
// write, so nothing else can modify the region while it is unlocked.
type Protected struct {
	ByteStore
	WP WriteProtector

	lock sync.Mutex
}

// NewProtected wraps store with wp.
func NewProtected(store ByteStore, wp WriteProtector) *Protected {
	return &Protected{ByteStore: store, WP: wp}
}

// WriteAt implements ByteStore.
func (p *Protected) WriteAt(addr uint32, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.WP.Unlock()
	defer p.WP.Lock()
	return p.ByteStore.WriteAt(addr, data)
}

// Latch is a software WriteProtector. It starts locked.
type Latch struct {
	unlocked bool
	// Unlocks counts unlock operations.
	Unlocks int
}

// Unlock implements WriteProtector.
func (l *Latch) Unlock() {
	l.unlocked = true
	l.Unlocks++
}

// Lock implements WriteProtector.
func (l *Latch) Lock() { l.unlocked = false }

// Locked reports the protection state.
func (l *Latch) Locked() bool { return !l.unlocked }
