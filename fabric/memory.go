// Package fabric models device memory that is reachable
// by every participant over a shared interconnect, plus
// the primitives participants use to coordinate through
// that memory.
package fabric

import (
	"fmt"
	"unsafe"
)

// WordSize is the alignment guaranteed for the base of
// every Memory region.
const WordSize = 8

// Memory is a region of one participant's device memory
// that has been exposed to the rest of the group.
//
// Reads and writes through a Memory are not synchronized.
// Participants must order their accesses through a
// Barrier.
type Memory struct {
	owner int
	data  []byte
}

// NewMemory allocates a zeroed, word-aligned region owned
// by the participant with the given rank.
func NewMemory(owner, size int) *Memory {
	if size < 0 {
		panic(fmt.Sprintf("invalid memory size: %d", size))
	}
	words := make([]uint64, (size+WordSize-1)/WordSize)
	var data []byte
	if len(words) > 0 {
		data = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	}
	return &Memory{owner: owner, data: data}
}

// Owner returns the rank of the participant that owns the
// region.
func (m *Memory) Owner() int {
	return m.owner
}

// Size returns the size of the region in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// Base returns a pointer to the first byte of the region.
func (m *Memory) Base() Ptr {
	return Ptr{mem: m}
}

// A Ptr is an address inside some Memory.
// Any participant may dereference any Ptr.
//
// The zero value is the nil pointer.
type Ptr struct {
	mem *Memory
	off int
}

// IsNil checks if the pointer is unset.
func (p Ptr) IsNil() bool {
	return p.mem == nil
}

// Owner returns the rank owning the pointed-to memory.
func (p Ptr) Owner() int {
	p.check()
	return p.mem.owner
}

// Offset returns the byte offset from the region's base.
func (p Ptr) Offset() int {
	return p.off
}

// Add returns p advanced by n bytes.
func (p Ptr) Add(n int) Ptr {
	p.check()
	if p.off+n < 0 || p.off+n > len(p.mem.data) {
		panic(fmt.Sprintf("illegal address: offset %d in region of %d bytes",
			p.off+n, len(p.mem.data)))
	}
	return Ptr{mem: p.mem, off: p.off + n}
}

// Remaining returns the number of addressable bytes
// starting at p.
// The nil pointer has no remaining bytes.
func (p Ptr) Remaining() int {
	if p.IsNil() {
		return 0
	}
	return len(p.mem.data) - p.off
}

// Bytes returns the n bytes starting at p.
//
// Accessing past the end of the region panics, which the
// execution queue reports as an illegal memory access.
func (p Ptr) Bytes(n int) []byte {
	p.check()
	if n < 0 || n > p.Remaining() {
		panic(fmt.Sprintf("illegal memory access: %d bytes at offset %d in region of %d bytes",
			n, p.off, len(p.mem.data)))
	}
	return p.mem.data[p.off : p.off+n : p.off+n]
}

// Word returns the 64-bit word at p for use with
// sync/atomic.
func (p Ptr) Word() *uint64 {
	p.check()
	if p.off%WordSize != 0 {
		panic(fmt.Sprintf("misaligned word address: offset %d", p.off))
	}
	buf := p.Bytes(WordSize)
	return (*uint64)(unsafe.Pointer(&buf[0]))
}

// Aligned checks if p is suitably aligned for values of
// the given size.
func (p Ptr) Aligned(size int) bool {
	return size <= 1 || p.off%size == 0
}

// Overlaps checks if the an bytes at a share any byte with
// the bn bytes at b.
func Overlaps(a Ptr, an int, b Ptr, bn int) bool {
	if a.IsNil() || b.IsNil() || a.mem != b.mem || an <= 0 || bn <= 0 {
		return false
	}
	return a.off < b.off+bn && b.off < a.off+an
}

func (p Ptr) check() {
	if p.IsNil() {
		panic("nil fabric pointer dereference")
	}
}

// View reinterprets the memory at p as a slice of n
// elements of type T.
//
// The caller is responsible for using a T whose alignment
// matches p.
func View[T any](p Ptr, n int) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	buf := p.Bytes(n * size)
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n)
}
