// Package engine wires the image device, boot-sector geometry, FAT
// allocator, directory engine, file I/O engine, and open-file table into the
// command surface a shell dispatches to: info, ls, cd, mkdir, creat, open,
// close, lsof, lseek, read, write, rm, rm -r, rmdir, and fsck.
package engine

import (
	"strings"

	"github.com/dargueta/fat32shell/direntry"
	"github.com/dargueta/fat32shell/directory"
	fserrors "github.com/dargueta/fat32shell/errors"
	"github.com/dargueta/fat32shell/fat"
	"github.com/dargueta/fat32shell/fileio"
	"github.com/dargueta/fat32shell/geometry"
	"github.com/dargueta/fat32shell/handle"
	"github.com/dargueta/fat32shell/image"
	"github.com/hashicorp/go-multierror"
)

// Engine is the mounted-volume state threaded through every command. It
// replaces the global mutable state of a process-wide image handle, boot
// sector, current directory, and open-file table with an explicit value.
type Engine struct {
	dev            image.Device
	bs             *geometry.BootSector
	fat            *fat.Table
	dir            *directory.Engine
	fio            *fileio.Engine
	handles        *handle.Table
	currentCluster uint32
	cwdPath        string
}

// Mount reads the boot sector from `dev` and builds an Engine positioned at
// the root directory.
func Mount(dev image.Device) (*Engine, error) {
	raw, err := dev.ReadAt(0, geometry.BootSectorSize)
	if err != nil {
		return nil, fserrors.New(fserrors.IOError).WrapError(err)
	}

	bs, err := geometry.Parse(raw)
	if err != nil {
		return nil, err
	}

	table := fat.New(dev, bs)
	dirEngine := directory.New(dev, bs, table)
	fioEngine := fileio.New(dev, bs, table)

	return &Engine{
		dev:            dev,
		bs:             bs,
		fat:            table,
		dir:            dirEngine,
		fio:            fioEngine,
		handles:        handle.New(),
		currentCluster: bs.RootCluster,
		cwdPath:        "/",
	}, nil
}

// InfoResult is the geometry summary the `info` command prints.
type InfoResult struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	NumFATs           uint32
	FATSizeSectors    uint32
	RootCluster       uint32
}

// Info returns the mounted volume's geometry.
func (e *Engine) Info() InfoResult {
	return InfoResult{
		BytesPerSector:    e.bs.BytesPerSector,
		SectorsPerCluster: e.bs.SectorsPerCluster,
		ReservedSectors:   e.bs.ReservedSectorCount,
		NumFATs:           e.bs.NumFATs,
		FATSizeSectors:    e.bs.FATSizeSectors,
		RootCluster:       e.bs.RootCluster,
	}
}

// Ls lists the display names of the current directory's live entries,
// excluding "." and "..".
func (e *Engine) Ls() ([]string, error) {
	slots, err := e.dir.Scan(e.currentCluster)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.Entry.Name == direntry.DotName || slot.Entry.Name == direntry.DotDotName {
			continue
		}
		names = append(names, direntry.FormatDirName(slot.Entry.Name))
	}
	return names, nil
}

// Cd changes the current directory to `name`, handling "." and ".." per the
// navigation rules: ".." at root stays at root; elsewhere it follows the
// directory's own ".." entry, treating a stored 0 as root.
func (e *Engine) Cd(name string) error {
	if name == "." {
		return nil
	}

	if name == ".." {
		if e.currentCluster == e.bs.RootCluster {
			return nil
		}

		dotDot, err := e.dir.LookupDotDot(e.currentCluster)
		if err != nil {
			return err
		}

		target := dotDot.Entry.FirstCluster
		if target == 0 {
			target = e.bs.RootCluster
		}
		e.currentCluster = target
		e.cwdPath = popPathSegment(e.cwdPath)
		return nil
	}

	slot, err := e.dir.Lookup(e.currentCluster, name)
	if err != nil {
		return err
	}
	if !slot.Entry.IsDirectory() {
		return fserrors.New(fserrors.NotADirectory)
	}

	e.currentCluster = slot.Entry.FirstCluster
	e.cwdPath = pushPathSegment(e.cwdPath, direntry.FormatDirName(slot.Entry.Name))
	return nil
}

func pushPathSegment(cwd, name string) string {
	if cwd == "/" {
		return cwd + name
	}
	return cwd + "/" + name
}

func popPathSegment(cwd string) string {
	idx := strings.LastIndexByte(cwd, '/')
	if idx <= 0 {
		return "/"
	}
	return cwd[:idx]
}

// Mkdir creates a subdirectory named `name` in the current directory.
func (e *Engine) Mkdir(name string) error {
	_, err := e.dir.Mkdir(e.currentCluster, name)
	return err
}

// Creat creates an empty file named `name` in the current directory.
func (e *Engine) Creat(name string) error {
	return e.dir.Creat(e.currentCluster, name)
}

// Open opens `name` in the current directory with the given mode
// ("-r"/"-w"/"-rw"/"-wr"), requiring it to be a file.
func (e *Engine) Open(name string, mode string) error {
	slot, err := e.dir.Lookup(e.currentCluster, name)
	if err != nil {
		return err
	}
	if slot.Entry.IsDirectory() {
		return fserrors.New(fserrors.NotAFile)
	}

	path := pushPathSegment(e.cwdPath, direntry.FormatDirName(slot.Entry.Name))
	_, err = e.handles.Open(name, mode, slot.Entry.FirstCluster, path)
	return err
}

// Close closes `name`'s open handle.
func (e *Engine) Close(name string) error {
	return e.handles.Close(name)
}

// Lsof lists every open handle.
func (e *Engine) Lsof() []handle.Record {
	return e.handles.List()
}

// Lseek sets `name`'s open handle offset, requiring it not exceed the file's
// computed size.
func (e *Engine) Lseek(name string, offset uint32) error {
	rec, _, err := e.handles.Get(name)
	if err != nil {
		return err
	}

	size := e.fio.ComputedSize(rec.FirstCluster)
	if offset > size {
		return fserrors.New(fserrors.OffsetTooLarge)
	}
	return e.handles.SetOffset(name, offset)
}

// Read reads up to `n` bytes from `name`'s open handle, requiring read mode,
// and advances the handle's offset by the number of bytes actually read.
func (e *Engine) Read(name string, n uint32) ([]byte, error) {
	rec, _, err := e.handles.Get(name)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(rec.Mode, "r") {
		return nil, fserrors.New(fserrors.NotOpenForRead)
	}

	data, err := e.fio.Read(rec.FirstCluster, rec.Offset, n)
	if err != nil {
		return nil, err
	}

	if err := e.handles.AdvanceOffset(name, uint32(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

// Write writes `data` to `name`'s open handle, requiring write mode, growing
// the file's chain as needed, and advances the handle's offset.
func (e *Engine) Write(name string, data []byte) error {
	rec, _, err := e.handles.Get(name)
	if err != nil {
		return err
	}
	if !strings.Contains(rec.Mode, "w") {
		return fserrors.New(fserrors.NotOpenForWrite)
	}

	newFirstCluster, err := e.fio.Write(rec.FirstCluster, rec.Offset, data)
	if err != nil {
		return err
	}

	if newFirstCluster != rec.FirstCluster {
		slot, lookupErr := e.dir.Lookup(e.currentCluster, name)
		if lookupErr != nil {
			return lookupErr
		}
		if err := e.dir.SetFirstCluster(slot.Location, newFirstCluster); err != nil {
			return err
		}
		if err := e.handles.SetFirstCluster(name, newFirstCluster); err != nil {
			return err
		}
	}

	return e.handles.AdvanceOffset(name, uint32(len(data)))
}

// Rm deletes the file named `name` from the current directory, refusing if
// it has an open handle.
func (e *Engine) Rm(name string) error {
	if e.handles.IsOpen(name) {
		return fserrors.New(fserrors.InUse)
	}

	slot, err := e.dir.Lookup(e.currentCluster, name)
	if err != nil {
		return err
	}
	if slot.Entry.IsDirectory() {
		return fserrors.New(fserrors.NotAFile)
	}

	return e.removeEntry(slot)
}

// Rmdir deletes the empty directory named `name` from the current directory.
func (e *Engine) Rmdir(name string) error {
	slot, err := e.dir.Lookup(e.currentCluster, name)
	if err != nil {
		return err
	}
	if !slot.Entry.IsDirectory() {
		return fserrors.New(fserrors.NotADirectory)
	}

	empty, err := e.dir.IsEmpty(slot.Entry.FirstCluster)
	if err != nil {
		return err
	}
	if !empty {
		return fserrors.New(fserrors.NotEmpty)
	}

	return e.removeEntry(slot)
}

// RmR recursively deletes the directory tree rooted at `name` ("rm -r").
func (e *Engine) RmR(name string) error {
	slot, err := e.dir.Lookup(e.currentCluster, name)
	if err != nil {
		return err
	}
	if !slot.Entry.IsDirectory() {
		return fserrors.New(fserrors.NotADirectory)
	}

	if err := e.dir.DeleteContents(slot.Entry.FirstCluster); err != nil {
		return err
	}
	return e.removeEntry(slot)
}

func (e *Engine) removeEntry(slot directory.Slot) error {
	if err := e.dir.Tombstone(slot.Location); err != nil {
		return err
	}
	if slot.Entry.FirstCluster != 0 {
		if err := e.fat.FreeChain(slot.Entry.FirstCluster); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariants walks every directory transitively reachable from the root
// cluster and aggregates every violation found into a single error, rather
// than stopping at the first one. It backs the `fsck` command.
func (e *Engine) CheckInvariants() error {
	var result *multierror.Error

	visited := make(map[uint32]bool)
	capacity := e.bs.FATCapacity()

	var walkDir func(cluster uint32, isRoot bool)
	walkDir = func(cluster uint32, isRoot bool) {
		slots, err := e.dir.Scan(cluster)
		if err != nil {
			result = multierror.Append(result, fserrors.Newf(
				fserrors.FileSystemCorrupted, "directory at cluster %d: %s", cluster, err))
			return
		}

		if !isRoot {
			if len(slots) < 2 || slots[0].Entry.Name != direntry.DotName || slots[1].Entry.Name != direntry.DotDotName {
				result = multierror.Append(result, fserrors.Newf(
					fserrors.FileSystemCorrupted,
					"directory at cluster %d is missing leading . and .. entries", cluster))
			}
		}

		for _, slot := range slots {
			if slot.Entry.Name == direntry.DotName || slot.Entry.Name == direntry.DotDotName {
				continue
			}

			if slot.Entry.FirstCluster == 0 {
				continue
			}

			if visited[slot.Entry.FirstCluster] {
				result = multierror.Append(result, fserrors.Newf(
					fserrors.FileSystemCorrupted,
					"cluster %d is claimed by more than one directory entry", slot.Entry.FirstCluster))
				continue
			}
			visited[slot.Entry.FirstCluster] = true

			chain, terminated := e.fat.Walk(slot.Entry.FirstCluster)
			if len(chain) == 0 || len(chain) > int(capacity) || !terminated {
				result = multierror.Append(result, fserrors.Newf(
					fserrors.FileSystemCorrupted,
					"chain starting at cluster %d does not terminate in EOC within FAT capacity",
					slot.Entry.FirstCluster))
				continue
			}

			for _, c := range chain {
				visited[c] = true
			}

			if slot.Entry.IsDirectory() {
				walkDir(slot.Entry.FirstCluster, false)
			}
		}
	}

	visited[e.bs.RootCluster] = true
	rootChain, _ := e.fat.Walk(e.bs.RootCluster)
	for _, c := range rootChain {
		visited[c] = true
	}
	walkDir(e.bs.RootCluster, true)

	for c := uint32(2); c < capacity; c++ {
		v := e.fat.ReadEntry(c)
		if v == 0 {
			continue
		}
		if !visited[c] {
			result = multierror.Append(result, fserrors.Newf(
				fserrors.FileSystemCorrupted, "cluster %d is allocated in the FAT but unreachable from root", c))
		}
	}

	return result.ErrorOrNil()
}
