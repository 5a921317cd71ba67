package handle_test

import (
	"testing"

	"github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsBadMode(t *testing.T) {
	table := handle.New()
	_, err := table.Open("A.TXT", "-x", 5, "/A.TXT")
	assert.ErrorIs(t, err, errors.New(errors.BadMode))
}

func TestOpenStripsLeadingDash(t *testing.T) {
	table := handle.New()
	idx, err := table.Open("A.TXT", "-rw", 5, "/A.TXT")
	require.NoError(t, err)
	assert.Zero(t, idx)

	rec, _, err := table.Get("A.TXT")
	require.NoError(t, err)
	assert.Equal(t, "rw", rec.Mode)
	assert.EqualValues(t, 5, rec.FirstCluster)
}

func TestOpenRejectsAlreadyOpen(t *testing.T) {
	table := handle.New()
	_, err := table.Open("A.TXT", "-r", 5, "/A.TXT")
	require.NoError(t, err)

	_, err = table.Open("A.TXT", "-r", 5, "/A.TXT")
	assert.ErrorIs(t, err, errors.New(errors.InUse))
}

func TestTableIsFullAfterCapacityOpens(t *testing.T) {
	table := handle.New()
	for i := 0; i < handle.Capacity; i++ {
		name := string(rune('A' + i))
		_, err := table.Open(name, "-r", uint32(i+2), "/"+name)
		require.NoError(t, err)
	}

	_, err := table.Open("OVERFLOW", "-r", 99, "/OVERFLOW")
	assert.ErrorIs(t, err, errors.New(errors.TooMany))
}

func TestCloseFreesSlotForReuse(t *testing.T) {
	table := handle.New()
	_, err := table.Open("A.TXT", "-r", 5, "/A.TXT")
	require.NoError(t, err)

	require.NoError(t, table.Close("A.TXT"))
	assert.False(t, table.IsOpen("A.TXT"))

	_, err = table.Open("A.TXT", "-w", 5, "/A.TXT")
	assert.NoError(t, err)
}

func TestCloseMissingIsError(t *testing.T) {
	table := handle.New()
	err := table.Close("NOPE")
	assert.ErrorIs(t, err, errors.New(errors.NotOpen))
}

func TestAdvanceOffset(t *testing.T) {
	table := handle.New()
	_, err := table.Open("A.TXT", "-rw", 5, "/A.TXT")
	require.NoError(t, err)

	require.NoError(t, table.AdvanceOffset("A.TXT", 10))
	rec, _, err := table.Get("A.TXT")
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.Offset)
}

func TestListReturnsOnlyInUseRecords(t *testing.T) {
	table := handle.New()
	_, err := table.Open("A.TXT", "-r", 5, "/A.TXT")
	require.NoError(t, err)

	records := table.List()
	require.Len(t, records, 1)
	assert.Equal(t, "/A.TXT", records[0].Path)
}
