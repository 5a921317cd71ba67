package fat_test

import (
	"testing"

	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestVolume builds a tiny in-memory image with a FAT big enough for the
// given number of clusters, and returns its Table and BootSector.
func newTestVolume(t *testing.T, fatCapacity uint32) (*fat.Table, *geometry.BootSector) {
	t.Helper()

	bytesPerSector := uint32(512)
	reserved := uint32(32)
	numFATs := uint32(2)
	fatSizeSectors := (fatCapacity*4 + bytesPerSector - 1) / bytesPerSector
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

	return fat.New(dev, bs), bs
}

func TestFindFreeSkipsReservedAndInUse(t *testing.T) {
	table, _ := newTestVolume(t, 32)

	first := table.FindFree()
	assert.EqualValues(t, 2, first)

	require.NoError(t, table.Terminate(2))
	second := table.FindFree()
	assert.EqualValues(t, 3, second)
}

func TestLinkAndWalk(t *testing.T) {
	table, _ := newTestVolume(t, 32)

	require.NoError(t, table.Link(2, 3))
	require.NoError(t, table.Link(3, 4))
	require.NoError(t, table.Terminate(4))

	chain, terminated := table.Walk(2)
	assert.Equal(t, []uint32{2, 3, 4}, chain)
	assert.True(t, terminated)

	next, eoc := table.NextCluster(4)
	assert.Equal(t, fat.NONE, next)
	assert.True(t, eoc)
}

func TestFreeChainZeroesEveryLink(t *testing.T) {
	table, _ := newTestVolume(t, 32)

	require.NoError(t, table.Link(2, 3))
	require.NoError(t, table.Terminate(3))
	require.NoError(t, table.FreeChain(2))

	assert.EqualValues(t, 0, table.ReadEntry(2))
	assert.EqualValues(t, 0, table.ReadEntry(3))
}

func TestExtendReportsNoSpaceOnExhaustion(t *testing.T) {
	table, bs := newTestVolume(t, 4)

	require.NoError(t, table.Terminate(2))

	allocated, err := table.Extend(2, int(bs.FATCapacity()))
	assert.Error(t, err)
	assert.NotEmpty(t, allocated)

	for _, c := range allocated {
		next, eoc := table.NextCluster(c)
		assert.True(t, eoc || next != fat.NONE)
	}
}

func TestWalkToleratesMissingTerminator(t *testing.T) {
	table, _ := newTestVolume(t, 32)
	// Cluster 2's entry is left at 0 (free) rather than EOC: a malformed
	// chain. Walk must stop instead of looping forever, and must report that
	// it did not end in a genuine EOC.
	chain, terminated := table.Walk(2)
	assert.Equal(t, []uint32{2}, chain)
	assert.False(t, terminated)
}

func TestWalkReportsCycleAsUnterminated(t *testing.T) {
	table, _ := newTestVolume(t, 32)
	// 2 -> 3 -> 2: a cycle, never reaching an EOC code.
	require.NoError(t, table.Link(2, 3))
	require.NoError(t, table.Link(3, 2))

	chain, terminated := table.Walk(2)
	assert.Equal(t, []uint32{2, 3}, chain)
	assert.False(t, terminated)
}
