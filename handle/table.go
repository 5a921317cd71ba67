// Package handle implements the open-file table: a fixed-capacity
// registry of handles keyed by canonical name, each binding a mode, a first
// cluster, and a byte offset.
package handle

import (
	"strings"

	"github.com/dargueta/fat32shell/direntry"
	fserrors "github.com/dargueta/fat32shell/errors"
)

// Capacity is the maximum number of simultaneously open handles.
const Capacity = 10

// Record is one entry in the open-file table.
type Record struct {
	FormattedName direntry.Name11
	Mode          string
	FirstCluster  uint32
	Offset        uint32
	InUse         bool
	Path          string
}

// Table is the fixed-capacity open-file table.
type Table struct {
	slots [Capacity]Record
}

// New returns an empty open-file table.
func New() *Table {
	return &Table{}
}

func normalizeMode(mode string) (string, error) {
	switch mode {
	case "-r", "-w", "-rw", "-wr":
		return strings.TrimPrefix(mode, "-"), nil
	default:
		return "", fserrors.New(fserrors.BadMode)
	}
}

// findByName returns the index of the in-use record with the given formatted
// name, or -1 if none exists.
func (t *Table) findByName(name direntry.Name11) int {
	for i := range t.slots {
		if t.slots[i].InUse && t.slots[i].FormattedName == name {
			return i
		}
	}
	return -1
}

// Open validates `mode`, rejects a name that's already open, finds the lowest
// -index free slot, and populates it. `firstCluster` and `path` come from the
// caller, which must already have resolved `name` to a file entry.
func (t *Table) Open(name string, mode string, firstCluster uint32, path string) (int, error) {
	normalizedMode, err := normalizeMode(mode)
	if err != nil {
		return -1, err
	}

	formattedName := direntry.ToFAT32Name(name)
	if t.findByName(formattedName) != -1 {
		return -1, fserrors.New(fserrors.InUse).WithMessage("already open")
	}

	for i := range t.slots {
		if !t.slots[i].InUse {
			t.slots[i] = Record{
				FormattedName: formattedName,
				Mode:          normalizedMode,
				FirstCluster:  firstCluster,
				Offset:        0,
				InUse:         true,
				Path:          path,
			}
			return i, nil
		}
	}

	return -1, fserrors.New(fserrors.TooMany)
}

// Close clears the slot holding `name`'s handle.
func (t *Table) Close(name string) error {
	idx := t.findByName(direntry.ToFAT32Name(name))
	if idx == -1 {
		return fserrors.New(fserrors.NotOpen)
	}
	t.slots[idx] = Record{}
	return nil
}

// IsOpen reports whether `name` currently has an open handle.
func (t *Table) IsOpen(name string) bool {
	return t.findByName(direntry.ToFAT32Name(name)) != -1
}

// Get returns the record for `name`'s open handle.
func (t *Table) Get(name string) (Record, int, error) {
	idx := t.findByName(direntry.ToFAT32Name(name))
	if idx == -1 {
		return Record{}, -1, fserrors.New(fserrors.NotOpen)
	}
	return t.slots[idx], idx, nil
}

// SetOffset updates the stored offset for `name`'s open handle. The caller is
// responsible for bounds-checking against the file's computed size
// (OffsetTooLarge).
func (t *Table) SetOffset(name string, offset uint32) error {
	idx := t.findByName(direntry.ToFAT32Name(name))
	if idx == -1 {
		return fserrors.New(fserrors.NotOpen)
	}
	t.slots[idx].Offset = offset
	return nil
}

// SetFirstCluster updates the stored first cluster for `name`'s open handle,
// used after a write allocates a first cluster for a previously empty file.
func (t *Table) SetFirstCluster(name string, cluster uint32) error {
	idx := t.findByName(direntry.ToFAT32Name(name))
	if idx == -1 {
		return fserrors.New(fserrors.NotOpen)
	}
	t.slots[idx].FirstCluster = cluster
	return nil
}

// AdvanceOffset adds `n` bytes to `name`'s stored offset, used after a read or
// write actually transfers bytes.
func (t *Table) AdvanceOffset(name string, n uint32) error {
	idx := t.findByName(direntry.ToFAT32Name(name))
	if idx == -1 {
		return fserrors.New(fserrors.NotOpen)
	}
	t.slots[idx].Offset += n
	return nil
}

// List returns every in-use record, in slot-index order, for the `lsof`
// command.
func (t *Table) List() []Record {
	records := make([]Record, 0, Capacity)
	for i := range t.slots {
		if t.slots[i].InUse {
			records = append(records, t.slots[i])
		}
	}
	return records
}
