// Package fileio implements positioned byte I/O across a file's (possibly
// non-contiguous) cluster chain, including on-demand growth on write.
package fileio

import (
	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
)

// Engine is the file I/O engine bound to a mounted volume.
type Engine struct {
	dev image.Device
	bs  *geometry.BootSector
	fat *fat.Table
}

// New returns a file I/O Engine operating over the given device, geometry,
// and FAT allocator.
func New(dev image.Device, bs *geometry.BootSector, table *fat.Table) *Engine {
	return &Engine{dev: dev, bs: bs, fat: table}
}

// ComputedSize returns the file's size in bytes, rounded up to a whole number
// of clusters: the engine does not trust the on-disk fileSize field and
// instead walks the chain.
func (e *Engine) ComputedSize(firstCluster uint32) uint32 {
	if firstCluster == 0 {
		return 0
	}
	chain, _ := e.fat.Walk(firstCluster)
	return uint32(len(chain)) * e.bs.ClusterBytes
}

// Read reads up to `n` bytes starting at `offset` from the file's chain,
// clamped to the file's computed size, returning the bytes actually read.
func (e *Engine) Read(firstCluster uint32, offset uint32, n uint32) ([]byte, error) {
	size := e.ComputedSize(firstCluster)
	if offset >= size {
		return nil, nil
	}

	remaining := size - offset
	toRead := n
	if toRead > remaining {
		toRead = remaining
	}
	if toRead == 0 {
		return nil, nil
	}

	chain, _ := e.fat.Walk(firstCluster)
	clusterBytes := e.bs.ClusterBytes

	startClusterIdx := offset / clusterBytes
	offsetInCluster := offset % clusterBytes

	out := make([]byte, 0, toRead)
	for idx := startClusterIdx; idx < uint32(len(chain)) && uint32(len(out)) < toRead; idx++ {
		cluster := chain[idx]
		clusterStart := e.bs.ClusterFirstByte(cluster)

		readOffset := int64(0)
		if idx == startClusterIdx {
			readOffset = int64(offsetInCluster)
		}

		available := int64(clusterBytes) - readOffset
		want := int64(toRead) - int64(len(out))
		if want > available {
			want = available
		}

		data, err := e.dev.ReadAt(clusterStart+readOffset, int(want))
		if err != nil {
			return out, fserrors.New(fserrors.IOError).WrapError(err)
		}
		out = append(out, data...)
	}

	return out, nil
}

// Extend grows the file's chain so that its computed size is at least `need`
// bytes, allocating clusters via the FAT allocator and, for a previously
// empty file (firstCluster == 0), returning the newly allocated first cluster
// so the caller can update the directory entry.
//
// On allocator exhaustion it returns a NoSpace error; whatever clusters were
// linked before exhaustion remain linked rather than being unwound.
func (e *Engine) Extend(firstCluster uint32, need uint32) (newFirstCluster uint32, err error) {
	current := e.ComputedSize(firstCluster)
	if current >= need {
		return firstCluster, nil
	}

	clustersNeeded := int((need - current + e.bs.ClusterBytes - 1) / e.bs.ClusterBytes)

	if firstCluster == 0 {
		first := e.fat.FindFree()
		if first == fat.NONE {
			return 0, fserrors.New(fserrors.NoSpace)
		}
		if err := e.fat.Terminate(first); err != nil {
			return 0, fserrors.New(fserrors.IOError).WrapError(err)
		}
		firstCluster = first
		clustersNeeded--
	}

	if clustersNeeded <= 0 {
		return firstCluster, nil
	}

	chain, _ := e.fat.Walk(firstCluster)
	tail := chain[len(chain)-1]

	if _, extendErr := e.fat.Extend(tail, clustersNeeded); extendErr != nil {
		return firstCluster, extendErr
	}
	return firstCluster, nil
}

// Write writes `data` at `offset` into the file's chain, growing it first if
// necessary. It returns the (possibly new, if the file was empty) first
// cluster the caller must persist into the directory entry.
func (e *Engine) Write(firstCluster uint32, offset uint32, data []byte) (newFirstCluster uint32, err error) {
	need := offset + uint32(len(data))

	firstCluster, err = e.Extend(firstCluster, need)
	if err != nil {
		return firstCluster, err
	}

	chain, _ := e.fat.Walk(firstCluster)
	clusterBytes := e.bs.ClusterBytes

	startClusterIdx := offset / clusterBytes
	offsetInCluster := offset % clusterBytes

	written := 0
	for idx := startClusterIdx; idx < uint32(len(chain)) && written < len(data); idx++ {
		cluster := chain[idx]
		clusterStart := e.bs.ClusterFirstByte(cluster)

		writeOffset := int64(0)
		if idx == startClusterIdx {
			writeOffset = int64(offsetInCluster)
		}

		available := int64(clusterBytes) - writeOffset
		want := int64(len(data) - written)
		if want > available {
			want = available
		}

		chunk := data[written : written+int(want)]
		if err := e.dev.WriteAt(clusterStart+writeOffset, chunk); err != nil {
			return firstCluster, fserrors.New(fserrors.IOError).WrapError(err)
		}
		written += int(want)
	}

	return firstCluster, e.dev.Flush()
}
