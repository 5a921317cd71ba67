package image

import (
	"github.com/boljen/go-bitmap"
	fserrors "github.com/dargueta/fat32shell/errors"
)

// CachedDevice decorates a Device with a write-behind, sector-granularity
// cache: writes land in an in-memory mirror immediately and are only pushed to
// the backing Device when Flush is called. Loaded/dirty sector tracking uses a
// bitmap.Bitmap, narrowed from an arbitrary block size down to a single fixed
// sector size.
type CachedDevice struct {
	backing        Device
	bytesPerSector int
	totalSectors   int
	mirror         []byte
	loaded         bitmap.Bitmap
	dirty          bitmap.Bitmap
}

// NewCachedDevice wraps `backing` with a write-behind cache sized to its full
// extent, addressed in `bytesPerSector`-sized sectors.
func NewCachedDevice(backing Device, bytesPerSector int) *CachedDevice {
	totalSectors := int(backing.Size()) / bytesPerSector

	return &CachedDevice{
		backing:        backing,
		bytesPerSector: bytesPerSector,
		totalSectors:   totalSectors,
		mirror:         make([]byte, totalSectors*bytesPerSector),
		loaded:         bitmap.NewSlice(totalSectors),
		dirty:          bitmap.NewSlice(totalSectors),
	}
}

func (c *CachedDevice) sectorRange(offset int64, nBytes int) (firstSector, lastSector int) {
	firstSector = int(offset) / c.bytesPerSector
	lastSector = int(offset+int64(nBytes)-1) / c.bytesPerSector
	return
}

func (c *CachedDevice) ensureLoaded(sector int) error {
	if c.loaded.Get(sector) {
		return nil
	}

	start := int64(sector * c.bytesPerSector)
	data, err := c.backing.ReadAt(start, c.bytesPerSector)
	if err != nil {
		return err
	}

	copy(c.mirror[start:start+int64(c.bytesPerSector)], data)
	c.loaded.Set(sector, true)
	return nil
}

func (c *CachedDevice) ReadAt(offset int64, nBytes int) ([]byte, error) {
	if offset < 0 || offset+int64(nBytes) > int64(len(c.mirror)) {
		return nil, fserrors.Newf(
			fserrors.IOError, "read of %d bytes at offset %d is outside the image", nBytes, offset)
	}

	first, last := c.sectorRange(offset, nBytes)
	for s := first; s <= last; s++ {
		if err := c.ensureLoaded(s); err != nil {
			return nil, err
		}
	}

	out := make([]byte, nBytes)
	copy(out, c.mirror[offset:offset+int64(nBytes)])
	return out, nil
}

func (c *CachedDevice) WriteAt(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > int64(len(c.mirror)) {
		return fserrors.Newf(
			fserrors.IOError, "write of %d bytes at offset %d is outside the image", len(data), offset)
	}

	first, last := c.sectorRange(offset, len(data))
	for s := first; s <= last; s++ {
		if err := c.ensureLoaded(s); err != nil {
			return err
		}
	}

	copy(c.mirror[offset:offset+int64(len(data))], data)
	for s := first; s <= last; s++ {
		c.dirty.Set(s, true)
		c.loaded.Set(s, true)
	}
	return nil
}

// Flush writes every dirty sector back to the backing device, in ascending
// order, then flushes the backing device itself.
func (c *CachedDevice) Flush() error {
	for s := 0; s < c.totalSectors; s++ {
		if !c.dirty.Get(s) {
			continue
		}

		start := int64(s * c.bytesPerSector)
		sectorBytes := c.mirror[start : start+int64(c.bytesPerSector)]
		if err := c.backing.WriteAt(start, sectorBytes); err != nil {
			return err
		}
		c.dirty.Set(s, false)
	}

	return c.backing.Flush()
}

func (c *CachedDevice) Size() int64 {
	return int64(len(c.mirror))
}
