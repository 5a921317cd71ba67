// Package image provides the random-access byte store the engine mounts: a
// single regular file (or, for tests, an in-memory buffer) addressed by
// absolute byte offset, plus a flush barrier.
package image

import (
	"io"
	"os"

	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/xaionaro-go/bytesextra"
)

// Device is the image device abstraction described in the engine design: random
// -access read and write of fixed-size records at an absolute byte offset, with
// a flush barrier. Every FAT and directory mutation must be durable once Flush
// returns.
type Device interface {
	ReadAt(offset int64, nBytes int) ([]byte, error)
	WriteAt(offset int64, data []byte) error
	Flush() error
	Size() int64
}

// rawDevice is the direct, uncached implementation over an io.ReadWriteSeeker.
// FileDevice and MemoryDevice both delegate to it; the cache decorator in
// cache.go wraps a Device, not a rawDevice, so it works over either.
type rawDevice struct {
	backing io.ReadWriteSeeker
	flusher func() error
	size    int64
}

func (d *rawDevice) ReadAt(offset int64, nBytes int) ([]byte, error) {
	if _, err := d.backing.Seek(offset, io.SeekStart); err != nil {
		return nil, fserrors.New(fserrors.IOError).WrapError(err)
	}

	buf := make([]byte, nBytes)
	n, err := io.ReadFull(d.backing, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fserrors.New(fserrors.IOError).WrapError(err)
	}
	if n < nBytes {
		return nil, fserrors.Newf(
			fserrors.IOError, "short read at offset %d: wanted %d bytes, got %d",
			offset, nBytes, n)
	}
	return buf, nil
}

func (d *rawDevice) WriteAt(offset int64, data []byte) error {
	if _, err := d.backing.Seek(offset, io.SeekStart); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	n, err := d.backing.Write(data)
	if err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}
	if n < len(data) {
		return fserrors.Newf(
			fserrors.IOError, "short write at offset %d: wanted %d bytes, wrote %d",
			offset, len(data), n)
	}
	return nil
}

func (d *rawDevice) Flush() error {
	if d.flusher == nil {
		return nil
	}
	if err := d.flusher(); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}
	return nil
}

func (d *rawDevice) Size() int64 {
	return d.size
}

// NewFileDevice opens an on-disk image file for random access. The caller
// retains ownership of closing `f`.
func NewFileDevice(f *os.File) (Device, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fserrors.New(fserrors.IOError).WrapError(err)
	}

	return &rawDevice{
		backing: f,
		flusher: f.Sync,
		size:    info.Size(),
	}, nil
}

// NewMemoryDevice wraps a byte slice as a Device for tests, substituting a
// memory-backed image for disk I/O. Writes mutate `backing` in place; there
// is nothing to flush.
func NewMemoryDevice(backing []byte) Device {
	return &rawDevice{
		backing: bytesextra.NewReadWriteSeeker(backing),
		flusher: nil,
		size:    int64(len(backing)),
	}
}
