// Package secure holds sensitive byte buffers (seeds, private keys) with
// page locking where the OS allows it and guaranteed zeroing on release.
package secure

import (
	"runtime"
	"sync"
)

// Bytes is a buffer for key material. The memory is locked against swapping
// when possible and zeroed by Destroy.
type Bytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewBytes allocates a zeroed buffer of the given size.
func NewBytes(size int) *Bytes {
	b := &Bytes{data: make([]byte, size)}
	b.locked = mlock(b.data)

	// Backstop for callers that never reach Destroy.
	runtime.SetFinalizer(b, func(s *Bytes) { s.Destroy() })
	return b
}

// BytesFrom copies src into a new buffer. src is zeroed after the copy.
func BytesFrom(src []byte) *Bytes {
	b := NewBytes(len(src))
	copy(b.data, src)
	Zero(src)
	return b
}

// Bytes returns the underlying slice, or nil after Destroy.
func (s *Bytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Len returns the buffer length, 0 after Destroy.
func (s *Bytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IsLocked reports whether the pages backing the buffer are locked.
func (s *Bytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeroes and unlocks the buffer. It is safe to call more than once.
func (s *Bytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	Zero(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil
	runtime.SetFinalizer(s, nil)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
