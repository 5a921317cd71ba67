// Package directory implements the directory engine: iterating the
// 32-byte records in a directory's cluster chain, looking entries up by their
// canonical name, inserting and tombstoning them, and the structural
// operations (mkdir, creat, isEmpty, recursive delete) built on top.
package directory

import (
	"github.com/dargueta/fat32shell/direntry"
	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
)

// Slot is a live directory entry together with the absolute byte offset in
// the image where it's stored, the location insert/tombstone/cd all need to
// mutate it in place.
type Slot struct {
	Entry    direntry.Entry
	Location int64
}

// Engine is the directory engine bound to a mounted volume.
type Engine struct {
	dev image.Device
	bs  *geometry.BootSector
	fat *fat.Table
}

// New returns a directory Engine operating over the given device, geometry,
// and FAT allocator.
func New(dev image.Device, bs *geometry.BootSector, table *fat.Table) *Engine {
	return &Engine{dev: dev, bs: bs, fat: table}
}

// readClusterSlots reads every 32-byte slot in a single cluster.
func (e *Engine) readClusterSlots(cluster uint32) ([][]byte, int64, error) {
	start := e.bs.ClusterFirstByte(cluster)
	data, err := e.dev.ReadAt(start, int(e.bs.ClusterBytes))
	if err != nil {
		return nil, 0, fserrors.New(fserrors.IOError).WrapError(err)
	}

	count := int(e.bs.ClusterBytes) / direntry.Size
	slots := make([][]byte, count)
	for i := 0; i < count; i++ {
		slots[i] = data[i*direntry.Size : (i+1)*direntry.Size]
	}
	return slots, start, nil
}

// scanResult is the outcome of walking a directory's cluster chain up to (and
// including, for insertion purposes) the end-of-directory marker.
type scanResult struct {
	live           []Slot
	firstTombstone *int64 // location of the first 0xE5 slot seen before EOD, if any
	endOfDirAt     *int64 // location of the first 0x00 slot, if the chain has one
	lastCluster    uint32 // terminal cluster of the chain, for appending
}

// scan walks dirCluster's chain, classifying every slot. It stops reading
// further clusters once it hits a 0x00 marker: once a 0x00 first-byte is
// encountered, all later slots in the directory are also 0x00.
func (e *Engine) scan(dirCluster uint32) (*scanResult, error) {
	result := &scanResult{lastCluster: dirCluster}

	chain, _ := e.fat.Walk(dirCluster)
	if len(chain) == 0 {
		return result, nil
	}

	for _, cluster := range chain {
		result.lastCluster = cluster
		slots, clusterStart, err := e.readClusterSlots(cluster)
		if err != nil {
			return nil, err
		}

		for i, slot := range slots {
			location := clusterStart + int64(i*direntry.Size)

			switch slot[0] {
			case direntry.EndOfDirectory:
				if result.endOfDirAt == nil {
					loc := location
					result.endOfDirAt = &loc
				}
				return result, nil
			case direntry.Tombstone:
				if result.firstTombstone == nil {
					loc := location
					result.firstTombstone = &loc
				}
			default:
				entry := direntry.Decode(slot)
				result.live = append(result.live, Slot{Entry: entry, Location: location})
			}
		}
	}

	return result, nil
}

// Scan returns every live entry in dirCluster, in on-disk order.
func (e *Engine) Scan(dirCluster uint32) ([]Slot, error) {
	result, err := e.scan(dirCluster)
	if err != nil {
		return nil, err
	}
	return result.live, nil
}

// Lookup finds the live entry named `name` (display or already-canonical form
// is fine; it's converted here) in dirCluster.
func (e *Engine) Lookup(dirCluster uint32, name string) (Slot, error) {
	target := direntry.ToFAT32Name(name)
	return e.lookupCanonical(dirCluster, target)
}

// LookupDotDot finds dirCluster's ".." entry directly by its canonical name,
// bypassing ToFAT32Name (which would mis-split the leading dots).
func (e *Engine) LookupDotDot(dirCluster uint32) (Slot, error) {
	return e.lookupCanonical(dirCluster, direntry.DotDotName)
}

func (e *Engine) lookupCanonical(dirCluster uint32, target direntry.Name11) (Slot, error) {
	slots, err := e.Scan(dirCluster)
	if err != nil {
		return Slot{}, err
	}

	for _, slot := range slots {
		if slot.Entry.Name == target {
			return slot, nil
		}
	}
	return Slot{}, fserrors.New(fserrors.NotFound)
}

// Insert places `entry` into dirCluster's first available slot (preferring a
// tombstone over appending at the end-of-directory marker, and appending a new
// cluster only if neither exists), after scanning the entire chain to reject
// a duplicate name. The full scan is required even after a free slot has
// already been located, since the duplicate could live anywhere in the
// chain.
func (e *Engine) Insert(dirCluster uint32, entry direntry.Entry) (int64, error) {
	result, err := e.scan(dirCluster)
	if err != nil {
		return 0, err
	}

	for _, slot := range result.live {
		if slot.Entry.Name == entry.Name {
			return 0, fserrors.New(fserrors.AlreadyExists)
		}
	}

	var location int64
	switch {
	case result.firstTombstone != nil:
		location = *result.firstTombstone
	case result.endOfDirAt != nil:
		location = *result.endOfDirAt
	default:
		// Neither a tombstone nor an end-of-directory marker exists in the
		// current chain: append a new cluster.
		newCluster, extendErr := e.fat.Extend(result.lastCluster, 1)
		if extendErr != nil {
			return 0, extendErr
		}
		location = e.bs.ClusterFirstByte(newCluster[0])

		// Zero the rest of the new cluster so it reads as all-free, and the
		// slot right after ours (if any) still terminates the directory.
		zero := make([]byte, e.bs.ClusterBytes)
		if writeErr := e.dev.WriteAt(e.bs.ClusterFirstByte(newCluster[0]), zero); writeErr != nil {
			return 0, fserrors.New(fserrors.IOError).WrapError(writeErr)
		}
	}

	if err := e.dev.WriteAt(location, direntry.Encode(&entry)); err != nil {
		return 0, fserrors.New(fserrors.IOError).WrapError(err)
	}
	return location, e.dev.Flush()
}

// SetFirstCluster rewrites the firstClusterHi/Lo fields of the entry at
// `location`, used when a write grows a previously empty file (firstCluster
// == 0) and must record its newly allocated first cluster.
func (e *Engine) SetFirstCluster(location int64, cluster uint32) error {
	raw, err := e.dev.ReadAt(location, direntry.Size)
	if err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	entry := direntry.Decode(raw)
	entry.FirstCluster = cluster
	if err := e.dev.WriteAt(location, direntry.Encode(&entry)); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}
	return e.dev.Flush()
}

// Tombstone marks the 32-byte record at `location` as deleted.
func (e *Engine) Tombstone(location int64) error {
	raw, err := e.dev.ReadAt(location, direntry.Size)
	if err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	raw[0] = direntry.Tombstone
	if err := e.dev.WriteAt(location, raw); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}
	return e.dev.Flush()
}

// writeEndOfDirectorySentinel zeroes the 32-byte slot at `location`, marking
// it (and implicitly everything after it in the chain) as end-of-directory.
func (e *Engine) writeEndOfDirectorySentinel(location int64) error {
	return e.dev.WriteAt(location, make([]byte, direntry.Size))
}

// Mkdir creates a subdirectory named `name` inside dirCluster, allocates its
// first cluster, and seeds it with "." and ".." entries followed by an
// end-of-directory sentinel.
func (e *Engine) Mkdir(dirCluster uint32, name string) (uint32, error) {
	newCluster := e.fat.FindFree()
	if newCluster == fat.NONE {
		return 0, fserrors.New(fserrors.NoSpace)
	}
	if err := e.fat.Terminate(newCluster); err != nil {
		return 0, fserrors.New(fserrors.IOError).WrapError(err)
	}

	entry := direntry.Entry{
		Name:         direntry.ToFAT32Name(name),
		Attributes:   direntry.AttrDirectory,
		FirstCluster: newCluster,
		FileSize:     0,
	}
	if _, err := e.Insert(dirCluster, entry); err != nil {
		return 0, err
	}

	// "..": stores the literal root cluster number even when the parent is
	// root, rather than 0.
	dotEntry := direntry.Entry{Name: direntry.DotName, Attributes: direntry.AttrDirectory, FirstCluster: newCluster}
	dotDotEntry := direntry.Entry{Name: direntry.DotDotName, Attributes: direntry.AttrDirectory, FirstCluster: dirCluster}

	base := e.bs.ClusterFirstByte(newCluster)
	if err := e.dev.WriteAt(base, direntry.Encode(&dotEntry)); err != nil {
		return 0, fserrors.New(fserrors.IOError).WrapError(err)
	}
	if err := e.dev.WriteAt(base+direntry.Size, direntry.Encode(&dotDotEntry)); err != nil {
		return 0, fserrors.New(fserrors.IOError).WrapError(err)
	}
	if err := e.writeEndOfDirectorySentinel(base + 2*direntry.Size); err != nil {
		return 0, fserrors.New(fserrors.IOError).WrapError(err)
	}

	return newCluster, e.dev.Flush()
}

// Creat creates an empty file named `name` inside dirCluster. No cluster is
// allocated for its contents until a write grows it.
func (e *Engine) Creat(dirCluster uint32, name string) error {
	entry := direntry.Entry{
		Name:         direntry.ToFAT32Name(name),
		Attributes:   direntry.AttrArchive,
		FirstCluster: 0,
		FileSize:     0,
	}
	_, err := e.Insert(dirCluster, entry)
	return err
}

// IsEmpty reports whether dirCluster contains no live entries other than "."
// and "..".
func (e *Engine) IsEmpty(dirCluster uint32) (bool, error) {
	slots, err := e.Scan(dirCluster)
	if err != nil {
		return false, err
	}

	for _, slot := range slots {
		if slot.Entry.Name == direntry.DotName || slot.Entry.Name == direntry.DotDotName {
			continue
		}
		return false, nil
	}
	return true, nil
}

// DeleteContents recursively deletes everything inside dirCluster (but not
// dirCluster's own directory entry), freeing every file's and subdirectory's
// chain as it goes. "." and ".." are skipped.
//
// Each child is removed from the directory that actually contains it
// (dirCluster itself, at every recursion depth), never from some
// caller-tracked "current directory" that could point elsewhere by the time
// the recursive call returns.
func (e *Engine) DeleteContents(dirCluster uint32) error {
	slots, err := e.Scan(dirCluster)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		if slot.Entry.Name == direntry.DotName || slot.Entry.Name == direntry.DotDotName {
			continue
		}

		if slot.Entry.IsDirectory() {
			if err := e.DeleteContents(slot.Entry.FirstCluster); err != nil {
				return err
			}
		}

		if err := e.Tombstone(slot.Location); err != nil {
			return err
		}
		if slot.Entry.FirstCluster != 0 {
			if err := e.fat.FreeChain(slot.Entry.FirstCluster); err != nil {
				return err
			}
		}
	}

	return nil
}
