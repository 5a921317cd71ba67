package engine_test

import (
	"testing"

	"github.com/dargueta/fat32shell/engine"
	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/format"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMountedEngine formats a fresh 10 MiB image matching the end-to-end
// scenario geometry (512 bytes/sector, 1 sector/cluster, root cluster 2) and
// mounts it, also returning the raw device and parsed geometry so a test can
// reach around the Engine and corrupt the FAT directly.
func newMountedEngine(t *testing.T) (*engine.Engine, image.Device, *geometry.BootSector) {
	t.Helper()

	preset, err := geometry.GetPreset("image-10mb")
	require.NoError(t, err)

	backing := make([]byte, preset.TotalSizeBytes())
	dev := image.NewMemoryDevice(backing)
	require.NoError(t, format.FormatImage(dev, preset))

	raw, err := dev.ReadAt(0, geometry.BootSectorSize)
	require.NoError(t, err)
	bs, err := geometry.Parse(raw)
	require.NoError(t, err)

	eng, err := engine.Mount(dev)
	require.NoError(t, err)
	return eng, dev, bs
}

func TestInfoReportsFreshGeometry(t *testing.T) {
	eng, _, _ := newMountedEngine(t)
	info := eng.Info()

	assert.EqualValues(t, 512, info.BytesPerSector)
	assert.EqualValues(t, 1, info.SectorsPerCluster)
	assert.EqualValues(t, 2, info.RootCluster)
}

func TestMkdirCdRoundTrip(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Mkdir("FOO"))

	names, err := eng.Ls()
	require.NoError(t, err)
	assert.Equal(t, []string{"FOO"}, names)

	require.NoError(t, eng.Cd("FOO"))
	names, err = eng.Ls()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, eng.Cd(".."))
	names, err = eng.Ls()
	require.NoError(t, err)
	assert.Equal(t, []string{"FOO"}, names)
}

func TestCreatOpenWriteLseekReadRoundTrip(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Creat("A.TXT"))
	require.NoError(t, eng.Open("A.TXT", "-rw"))
	require.NoError(t, eng.Write("A.TXT", []byte("hello")))
	require.NoError(t, eng.Lseek("A.TXT", 0))

	data, err := eng.Read("A.TXT", 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestOpenModeEnforcement(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Creat("B"))
	require.NoError(t, eng.Open("B", "-r"))

	err := eng.Write("B", []byte("x"))
	assert.ErrorIs(t, err, fserrors.New(fserrors.NotOpenForWrite))

	require.NoError(t, eng.Close("B"))
	require.NoError(t, eng.Open("B", "-w"))

	_, err = eng.Read("B", 1)
	assert.ErrorIs(t, err, fserrors.New(fserrors.NotOpenForRead))
}

func TestRmdirThenRmRecursive(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Mkdir("D"))
	require.NoError(t, eng.Cd("D"))
	require.NoError(t, eng.Creat("X"))
	require.NoError(t, eng.Cd(".."))

	err := eng.Rmdir("D")
	assert.ErrorIs(t, err, fserrors.New(fserrors.NotEmpty))

	require.NoError(t, eng.RmR("D"))

	names, err := eng.Ls()
	require.NoError(t, err)
	assert.NotContains(t, names, "D")
}

func TestRmRefusesWhileOpen(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Creat("F"))
	require.NoError(t, eng.Open("F", "-w"))

	err := eng.Rm("F")
	assert.ErrorIs(t, err, fserrors.New(fserrors.InUse))

	require.NoError(t, eng.Close("F"))
	require.NoError(t, eng.Rm("F"))
}

func TestLsofListsOpenHandles(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Creat("A"))
	require.NoError(t, eng.Open("A", "-r"))

	records := eng.Lsof()
	require.Len(t, records, 1)
	assert.Equal(t, "/A", records[0].Path)
}

func TestCheckInvariantsCatchesDanglingFreeLink(t *testing.T) {
	eng, dev, bs := newMountedEngine(t)

	require.NoError(t, eng.Creat("C"))
	require.NoError(t, eng.Open("C", "-rw"))
	require.NoError(t, eng.Write("C", []byte("payload")))

	first := eng.Lsof()[0].FirstCluster
	require.NotZero(t, first)
	require.NoError(t, eng.Close("C"))

	// Directly free the file's first cluster in the FAT without touching its
	// directory entry: a dangling chain, not a genuine EOC termination.
	table := fat.New(dev, bs)
	require.NoError(t, table.WriteEntry(first, 0))

	err := eng.CheckInvariants()
	assert.Error(t, err)
}

func TestCheckInvariantsPassesAfterMixedOperations(t *testing.T) {
	eng, _, _ := newMountedEngine(t)

	require.NoError(t, eng.Mkdir("SUB"))
	require.NoError(t, eng.Cd("SUB"))
	require.NoError(t, eng.Creat("FILE"))
	require.NoError(t, eng.Open("FILE", "-rw"))
	require.NoError(t, eng.Write("FILE", []byte("payload")))
	require.NoError(t, eng.Close("FILE"))
	require.NoError(t, eng.Cd(".."))

	assert.NoError(t, eng.CheckInvariants())
}
