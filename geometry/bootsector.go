// Package geometry parses the FAT32 boot sector and provides the pure
// cluster-arithmetic functions every other engine package builds on.
package geometry

import (
	"encoding/binary"

	fserrors "github.com/dargueta/fat32shell/errors"
)

// RawBootSector is the on-disk layout of the fields this engine cares about,
// in the order they appear in the boot sector. It is FAT32-only: there is no
// FAT12/16 branch on RootEntryCount or a 16-bit sectorsPerFAT, since a FAT32
// volume always uses the 32-bit field and always has a zero root entry count.
type RawBootSector struct {
	JmpBoot             [3]byte
	OEMName              [8]byte
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorCount  uint16
	NumFATs              uint8
	RootEntryCount       uint16
	totalSectors16       uint16
	Media                uint8
	fatSize16            uint16
	SectorsPerTrack      uint16
	NumHeads             uint16
	HiddenSectors        uint32
	TotalSectors32       uint32
	FATSizeSectors       uint32
	ExtFlags             uint16
	FSVersion            uint16
	RootCluster          uint32
	FSInfoSector         uint16
	BackupBootSector     uint16
	reserved             [12]byte
	DriveNumber          uint8
	ntReserved           uint8
	BootSignature        uint8
	VolumeID             uint32
	VolumeLabel          [11]byte
	FileSystemType       [8]byte
}

// BootSectorSize is the number of bytes read to parse a FAT32 boot sector.
// This engine never rewrites it.
const BootSectorSize = 90

// BootSector is the immutable, parsed geometry of a mounted volume plus its
// derived quantities.
type BootSector struct {
	BytesPerSector      uint32
	SectorsPerCluster   uint32
	ReservedSectorCount uint32
	NumFATs             uint32
	FATSizeSectors      uint32
	RootCluster         uint32

	ClusterBytes     uint32
	FATStartByte     int64
	DataStartSector  uint32
}

// Parse decodes a raw boot sector and computes the derived fields every other
// package uses. It does not validate the volume beyond what's needed to avoid
// division by zero; a conforming image is assumed, and the boot sector is
// read once at mount and trusted thereafter.
func Parse(raw []byte) (*BootSector, error) {
	if len(raw) < BootSectorSize {
		return nil, fserrors.Newf(
			fserrors.IOError, "boot sector short: need %d bytes, got %d", BootSectorSize, len(raw))
	}

	var r RawBootSector
	r.JmpBoot[0], r.JmpBoot[1], r.JmpBoot[2] = raw[0], raw[1], raw[2]
	copy(r.OEMName[:], raw[3:11])
	r.BytesPerSector = binary.LittleEndian.Uint16(raw[11:13])
	r.SectorsPerCluster = raw[13]
	r.ReservedSectorCount = binary.LittleEndian.Uint16(raw[14:16])
	r.NumFATs = raw[16]
	r.RootEntryCount = binary.LittleEndian.Uint16(raw[17:19])
	r.totalSectors16 = binary.LittleEndian.Uint16(raw[19:21])
	r.Media = raw[21]
	r.fatSize16 = binary.LittleEndian.Uint16(raw[22:24])
	r.SectorsPerTrack = binary.LittleEndian.Uint16(raw[24:26])
	r.NumHeads = binary.LittleEndian.Uint16(raw[26:28])
	r.HiddenSectors = binary.LittleEndian.Uint32(raw[28:32])
	r.TotalSectors32 = binary.LittleEndian.Uint32(raw[32:36])
	r.FATSizeSectors = binary.LittleEndian.Uint32(raw[36:40])
	r.ExtFlags = binary.LittleEndian.Uint16(raw[40:42])
	r.FSVersion = binary.LittleEndian.Uint16(raw[42:44])
	r.RootCluster = binary.LittleEndian.Uint32(raw[44:48])
	r.FSInfoSector = binary.LittleEndian.Uint16(raw[48:50])
	r.BackupBootSector = binary.LittleEndian.Uint16(raw[50:52])

	if r.BytesPerSector == 0 {
		return nil, fserrors.New(fserrors.IOError).WithMessage("BytesPerSector is 0")
	}
	if r.SectorsPerCluster == 0 {
		return nil, fserrors.New(fserrors.IOError).WithMessage("SectorsPerCluster is 0")
	}

	bs := &BootSector{
		BytesPerSector:      uint32(r.BytesPerSector),
		SectorsPerCluster:   uint32(r.SectorsPerCluster),
		ReservedSectorCount: uint32(r.ReservedSectorCount),
		NumFATs:             uint32(r.NumFATs),
		FATSizeSectors:      r.FATSizeSectors,
		RootCluster:         r.RootCluster,
	}
	bs.ClusterBytes = bs.BytesPerSector * bs.SectorsPerCluster
	bs.FATStartByte = int64(bs.ReservedSectorCount) * int64(bs.BytesPerSector)
	bs.DataStartSector = bs.ReservedSectorCount + bs.NumFATs*bs.FATSizeSectors

	return bs, nil
}

// ClusterFirstByte returns the absolute byte offset of the first byte of
// cluster `c`.
func (bs *BootSector) ClusterFirstByte(c uint32) int64 {
	sector := bs.DataStartSector + (c-2)*bs.SectorsPerCluster
	return int64(sector) * int64(bs.BytesPerSector)
}

// FATEntryByte returns the absolute byte offset of FAT entry `c`'s 32-bit
// slot in the (primary) FAT.
func (bs *BootSector) FATEntryByte(c uint32) int64 {
	return bs.FATStartByte + 4*int64(c)
}

// FATCapacity is the number of 32-bit entries the primary FAT can hold:
// fatSizeSectors * bytesPerSector / 4.
func (bs *BootSector) FATCapacity() uint32 {
	return bs.FATSizeSectors * bs.BytesPerSector / 4
}
