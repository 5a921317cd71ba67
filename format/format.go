// Package format lays down a blank, mountable FAT32 image from a named
// geometry preset: a zeroed reserved region holding a minimal boot sector,
// every FAT copy zeroed with cluster 2 terminated in the primary FAT as the
// root directory's chain, and a single zeroed root directory slot as its
// end-of-directory sentinel.
package format

import (
	"encoding/binary"

	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/image"
)

// rootCluster is always 2 on a freshly formatted volume; FAT entries 0 and 1
// are reserved and never assigned to a directory or file.
const rootCluster = 2

// fatSizeSectors computes the number of sectors needed for one FAT copy,
// converging by fixed-point iteration since the data region's size (and thus
// the cluster count the FAT must address) shrinks as the FAT itself grows.
func fatSizeSectors(preset geometry.Preset) uint32 {
	fatSectors := uint32(1)
	for i := 0; i < 10; i++ {
		dataSectors := preset.TotalSectors - uint(preset.ReservedSectors) - uint(preset.NumFATs)*uint(fatSectors)
		dataClusters := uint32(dataSectors) / uint32(preset.SectorsPerCluster)

		entriesNeeded := dataClusters + rootCluster
		bytesNeeded := entriesNeeded * 4
		next := (bytesNeeded + uint32(preset.BytesPerSector) - 1) / uint32(preset.BytesPerSector)
		if next == fatSectors {
			break
		}
		fatSectors = next
	}
	return fatSectors
}

// FormatImage writes a blank FAT32 volume matching `preset` to `dev`, which
// must already be sized to at least `preset.TotalSizeBytes()`.
func FormatImage(dev image.Device, preset geometry.Preset) error {
	totalBytes := preset.TotalSizeBytes()
	if dev.Size() < totalBytes {
		return fserrors.Newf(
			fserrors.IOError, "device is too small for preset %q: need %d bytes, have %d",
			preset.Slug, totalBytes, dev.Size())
	}

	fatSectors := fatSizeSectors(preset)

	reservedBytes := int64(preset.ReservedSectors) * int64(preset.BytesPerSector)
	if err := dev.WriteAt(0, make([]byte, reservedBytes)); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	bootSector := buildBootSector(preset, fatSectors)
	if err := dev.WriteAt(0, bootSector); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	fatBytes := int64(fatSectors) * int64(preset.BytesPerSector)

	zeroFAT := make([]byte, fatBytes)
	for i := uint(0); i < preset.NumFATs; i++ {
		offset := reservedBytes + int64(i)*fatBytes
		if err := dev.WriteAt(offset, zeroFAT); err != nil {
			return fserrors.New(fserrors.IOError).WrapError(err)
		}
	}

	bs, err := geometry.Parse(bootSector)
	if err != nil {
		return err
	}

	rootEntry := make([]byte, 4)
	binary.LittleEndian.PutUint32(rootEntry, 0x0FFFFFFF)
	if err := dev.WriteAt(bs.FATEntryByte(rootCluster), rootEntry); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	rootSlot := make([]byte, 32)
	if err := dev.WriteAt(bs.ClusterFirstByte(rootCluster), rootSlot); err != nil {
		return fserrors.New(fserrors.IOError).WrapError(err)
	}

	return dev.Flush()
}

func buildBootSector(preset geometry.Preset, fatSectors uint32) []byte {
	raw := make([]byte, geometry.BootSectorSize)

	raw[0] = 0xEB
	raw[1] = 0x00
	raw[2] = 0x90
	copy(raw[3:11], "FAT32SH ")

	binary.LittleEndian.PutUint16(raw[11:13], uint16(preset.BytesPerSector))
	raw[13] = uint8(preset.SectorsPerCluster)
	binary.LittleEndian.PutUint16(raw[14:16], uint16(preset.ReservedSectors))
	raw[16] = uint8(preset.NumFATs)
	binary.LittleEndian.PutUint16(raw[17:19], 0) // rootEntryCount: always 0 on FAT32
	binary.LittleEndian.PutUint16(raw[19:21], 0) // totalSectors16: unused, FAT32 uses the 32-bit field
	raw[21] = 0xF8                                // media: fixed disk
	binary.LittleEndian.PutUint16(raw[22:24], 0)  // fatSize16: unused on FAT32
	binary.LittleEndian.PutUint16(raw[24:26], 0)
	binary.LittleEndian.PutUint16(raw[26:28], 0)
	binary.LittleEndian.PutUint32(raw[28:32], 0)
	binary.LittleEndian.PutUint32(raw[32:36], uint32(preset.TotalSectors))
	binary.LittleEndian.PutUint32(raw[36:40], fatSectors)
	binary.LittleEndian.PutUint16(raw[40:42], 0)
	binary.LittleEndian.PutUint16(raw[42:44], 0)
	binary.LittleEndian.PutUint32(raw[44:48], rootCluster)
	binary.LittleEndian.PutUint16(raw[48:50], 0) // fsInfoSector: not written
	binary.LittleEndian.PutUint16(raw[50:52], 0) // backupBootSector: not written

	raw[66] = 0x29 // boot signature
	copy(raw[71:82], "NO NAME    ")
	copy(raw[82:90], "FAT32   ")

	return raw
}
