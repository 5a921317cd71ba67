// Package fat implements the File Allocation Table cluster-chain allocator:
// reading and writing 32-bit FAT entries, finding free clusters, and linking,
// terminating, and freeing chains. It is the sole owner of cluster allocation
// state; the directory and file I/O engines only ever ask it for the next
// cluster in a chain or a fresh one to extend into.
package fat

import (
	"encoding/binary"

	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
)

// NONE is the sentinel the allocator returns in place of a cluster number when
// there is no next cluster (EOC was reached) or when reading failed.
const NONE uint32 = 0xFFFFFFFF

// Reserved FAT entry codings, masked to 28 bits before interpretation.
const (
	free       = 0x00000000
	reserved   = 0x00000001
	minInUse   = 0x00000002
	maxInUse   = 0x0FFFFFEF
	minEOC     = 0x0FFFFFF8
	badCluster = 0x0FFFFFF7
	entryMask  = 0x0FFFFFFF
)

// Table is the FAT allocator bound to a mounted volume's image device and
// geometry.
type Table struct {
	dev image.Device
	bs  *geometry.BootSector
}

// New returns a Table operating on the primary FAT of the given device.
func New(dev image.Device, bs *geometry.BootSector) *Table {
	return &Table{dev: dev, bs: bs}
}

// ReadEntry returns the 28-bit value of FAT entry `c`. It returns NONE if the
// image device read fails.
func (t *Table) ReadEntry(c uint32) uint32 {
	data, err := t.dev.ReadAt(t.bs.FATEntryByte(c), 4)
	if err != nil {
		return NONE
	}
	return binary.LittleEndian.Uint32(data) & entryMask
}

// WriteEntry writes the low 28 bits of `v` to FAT entry `c`.
func (t *Table) WriteEntry(c uint32, v uint32) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v&entryMask)
	return t.dev.WriteAt(t.bs.FATEntryByte(c), data)
}

// IsEndOfChain reports whether a FAT value marks the end of a cluster chain.
func IsEndOfChain(v uint32) bool {
	return v >= minEOC
}

// NextCluster returns the cluster that follows `c` in its chain, and whether
// `c`'s entry is a genuine EOC marker. When `c`'s entry reads as free (or the
// read itself fails), NextCluster returns NONE with terminated=false: the
// caller must not treat this the same as a chain properly ending in EOC,
// since that free cluster may simultaneously be handed out by FindFree to a
// fresh allocation.
func (t *Table) NextCluster(c uint32) (next uint32, terminated bool) {
	v := t.ReadEntry(c)
	if v == NONE || v == free {
		return NONE, false
	}
	if IsEndOfChain(v) {
		return NONE, true
	}
	return v, false
}

// FindFree scans cluster indices from 2 up to the FAT's capacity and returns
// the first one whose entry is free, or NONE if the FAT is full.
func (t *Table) FindFree() uint32 {
	capacity := t.bs.FATCapacity()
	for c := uint32(2); c < capacity; c++ {
		if t.ReadEntry(c) == free {
			return c
		}
	}
	return NONE
}

// Terminate marks `c` as the end of its chain.
func (t *Table) Terminate(c uint32) error {
	return t.WriteEntry(c, minEOC)
}

// Link sets `from`'s FAT entry to point at `to`, extending a chain by one
// cluster.
func (t *Table) Link(from, to uint32) error {
	return t.WriteEntry(from, to)
}

// FreeChain walks the chain starting at c0, zeroing each entry after reading
// the next cluster in it (never zeroing an entry more than once, and never
// reading a zeroed entry as if it were still part of the chain).
func (t *Table) FreeChain(c0 uint32) error {
	current := c0
	for current != NONE && !IsEndOfChain(current) && current != free {
		if t.ReadEntry(current) == free {
			break
		}
		next, _ := t.NextCluster(current)
		if err := t.WriteEntry(current, free); err != nil {
			return fserrors.New(fserrors.IOError).WrapError(err)
		}
		current = next
	}
	return nil
}

// Walk returns every cluster in the chain starting at c0, in order, along
// with whether the chain ended in a genuine EOC marker. terminated is false
// if the chain instead cycled back on a cluster already visited, or dangled
// into a cluster whose FAT entry reads as free: both are corruption, not a
// normal end of chain, and callers checking chain integrity (e.g. a fsck-
// style invariant walk) must not treat them as equivalent to EOC. This is
// the sole access path directory scanning and file I/O use to traverse a
// chain.
func (t *Table) Walk(c0 uint32) (chain []uint32, terminated bool) {
	if c0 == 0 || c0 == NONE || IsEndOfChain(c0) {
		return nil, true
	}

	chain = []uint32{c0}
	seen := map[uint32]bool{c0: true}

	current := c0
	for {
		next, eoc := t.NextCluster(current)
		if eoc {
			return chain, true
		}
		if next == NONE {
			return chain, false
		}
		if seen[next] {
			return chain, false
		}
		chain = append(chain, next)
		seen[next] = true
		current = next
	}
}

// Extend appends `count` freshly allocated clusters to the chain terminating
// at `tail`, linking and terminating as it goes. It returns the clusters
// allocated, in order; on allocator exhaustion it returns what it managed to
// allocate along with a NoSpace error, leaving the partial chain linked
// rather than unwinding it.
func (t *Table) Extend(tail uint32, count int) ([]uint32, error) {
	allocated := make([]uint32, 0, count)
	current := tail

	for i := 0; i < count; i++ {
		next := t.FindFree()
		if next == NONE {
			return allocated, fserrors.New(fserrors.NoSpace)
		}
		if err := t.Link(current, next); err != nil {
			return allocated, fserrors.New(fserrors.IOError).WrapError(err)
		}
		if err := t.Terminate(next); err != nil {
			return allocated, fserrors.New(fserrors.IOError).WrapError(err)
		}
		allocated = append(allocated, next)
		current = next
	}

	return allocated, nil
}
