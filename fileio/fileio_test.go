package fileio_test

import (
	"testing"

	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/fileio"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestVolume builds a tiny in-memory FAT32-shaped volume with small
// clusters, so a write of a few dozen bytes exercises multi-cluster growth.
func newTestVolume(t *testing.T) (*fileio.Engine, *fat.Table, *geometry.BootSector) {
	t.Helper()

	bytesPerSector := uint32(16)
	reserved := uint32(2)
	numFATs := uint32(1)
	fatSizeSectors := uint32(2)
	dataSectors := uint32(64)
	totalSectors := reserved + numFATs*fatSizeSectors + dataSectors

	backing := make([]byte, int64(totalSectors)*int64(bytesPerSector))
	dev := image.NewMemoryDevice(backing)

	bs := &geometry.BootSector{
		BytesPerSector:      bytesPerSector,
		SectorsPerCluster:   1,
		ReservedSectorCount: reserved,
		NumFATs:             numFATs,
		FATSizeSectors:      fatSizeSectors,
		RootCluster:         2,
	}
	bs.ClusterBytes = bs.BytesPerSector * bs.SectorsPerCluster
	bs.FATStartByte = int64(bs.ReservedSectorCount) * int64(bs.BytesPerSector)
	bs.DataStartSector = bs.ReservedSectorCount + bs.NumFATs*bs.FATSizeSectors

	table := fat.New(dev, bs)
	fioEngine := fileio.New(dev, bs, table)
	return fioEngine, table, bs
}

func TestComputedSizeOfEmptyFileIsZero(t *testing.T) {
	fio, _, _ := newTestVolume(t)
	assert.EqualValues(t, 0, fio.ComputedSize(0))
}

func TestWriteAllocatesFirstClusterForEmptyFile(t *testing.T) {
	fio, _, bs := newTestVolume(t)

	newFirst, err := fio.Write(0, 0, []byte("hi"))
	require.NoError(t, err)
	assert.NotZero(t, newFirst)
	assert.EqualValues(t, bs.ClusterBytes, fio.ComputedSize(newFirst))

	data, err := fio.Read(newFirst, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestWriteGrowsChainAcrossMultipleClusters(t *testing.T) {
	fio, table, bs := newTestVolume(t)

	payload := make([]byte, int(bs.ClusterBytes)*3)
	for i := range payload {
		payload[i] = byte('A' + i%26)
	}

	newFirst, err := fio.Write(0, 0, payload)
	require.NoError(t, err)

	chain, terminated := table.Walk(newFirst)
	assert.Len(t, chain, 3)
	assert.True(t, terminated)

	readBack, err := fio.Read(newFirst, 0, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, readBack)
}

func TestReadClampsToComputedSize(t *testing.T) {
	fio, _, bs := newTestVolume(t)

	newFirst, err := fio.Write(0, 0, []byte("short"))
	require.NoError(t, err)

	data, err := fio.Read(newFirst, 0, bs.ClusterBytes*10)
	require.NoError(t, err)
	assert.EqualValues(t, bs.ClusterBytes, len(data))
}

func TestReadPastEndOfFileReturnsEmpty(t *testing.T) {
	fio, _, bs := newTestVolume(t)

	newFirst, err := fio.Write(0, 0, []byte("x"))
	require.NoError(t, err)

	data, err := fio.Read(newFirst, bs.ClusterBytes, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteAtOffsetWithinExistingChain(t *testing.T) {
	fio, _, _ := newTestVolume(t)

	first, err := fio.Write(0, 0, []byte("0123456789"))
	require.NoError(t, err)

	_, err = fio.Write(first, 2, []byte("XY"))
	require.NoError(t, err)

	data, err := fio.Read(first, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "01XY456789", string(data))
}
