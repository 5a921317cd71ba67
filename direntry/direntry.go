// Package direntry implements the 32-byte on-disk directory entry: the two
// canonical name transforms and encode/decode of the packed record.
package direntry

import (
	"encoding/binary"
	"strings"

	"github.com/noxer/bytewriter"
)

// Size is the length in bytes of one directory record.
const Size = 32

// Attribute flags.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
)

// First-byte sentinels.
const (
	EndOfDirectory = 0x00
	Tombstone      = 0xE5
)

// Name11 is the canonical 11-byte 8.3 name. All engine-internal name
// comparisons use this form, never the dotted display form.
type Name11 [11]byte

// Entry is a decoded directory entry, holding only the fields this engine
// reads or writes. Timestamps and NT-reserved bits are not modeled; they're
// out of scope for this shell.
type Entry struct {
	Name         Name11
	Attributes   uint8
	FirstCluster uint32
	FileSize     uint32
}

func (e *Entry) IsDirectory() bool {
	return e.Attributes&AttrDirectory != 0
}

// ToFAT32Name converts a user-facing string into its canonical 11-byte form:
// uppercased, split on the first '.', left-justified into 8 base + 3
// extension characters, space-padded, silently truncated beyond 8/3.
func ToFAT32Name(input string) Name11 {
	upper := strings.ToUpper(input)

	base := upper
	ext := ""
	if dot := strings.IndexByte(upper, '.'); dot >= 0 {
		base = upper[:dot]
		ext = upper[dot+1:]
	}

	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}

	var name Name11
	for i := range name {
		name[i] = ' '
	}
	copy(name[0:8], base)
	copy(name[8:11], ext)
	return name
}

// FormatDirName renders a canonical 11-byte name back into display form:
// uppercase, base trimmed at the first space, with ".EXT" appended only if
// the extension bytes aren't all spaces.
func FormatDirName(name Name11) string {
	upper := strings.ToUpper(string(name[:]))
	base := upper[0:8]
	ext := upper[8:11]

	if i := strings.IndexByte(base, ' '); i >= 0 {
		base = base[:i]
	}

	trimmedExt := strings.TrimRight(ext, " ")
	if trimmedExt == "" {
		return base
	}
	return base + "." + trimmedExt
}

// Encode serializes an Entry into its 32-byte on-disk form by wrapping a
// pre-sized buffer with noxer/bytewriter and binary.Write-ing each field into
// it in order.
func Encode(e *Entry) []byte {
	buf := make([]byte, Size)
	w := bytewriter.New(buf)

	w.Write(e.Name[:])
	binary.Write(w, binary.LittleEndian, e.Attributes)
	binary.Write(w, binary.LittleEndian, uint8(0))  // reserved
	binary.Write(w, binary.LittleEndian, uint8(0))  // createTimeMs
	binary.Write(w, binary.LittleEndian, uint16(0)) // createTime
	binary.Write(w, binary.LittleEndian, uint16(0)) // createDate
	binary.Write(w, binary.LittleEndian, uint16(0)) // lastAccessDate
	binary.Write(w, binary.LittleEndian, uint16(e.FirstCluster>>16))
	binary.Write(w, binary.LittleEndian, uint16(0)) // lastWriteTime
	binary.Write(w, binary.LittleEndian, uint16(0)) // lastWriteDate
	binary.Write(w, binary.LittleEndian, uint16(e.FirstCluster&0xFFFF))
	binary.Write(w, binary.LittleEndian, e.FileSize)

	return buf
}

// Decode parses a 32-byte on-disk record into an Entry. The caller is
// expected to have already checked the first byte for the end-of-directory
// and tombstone sentinels; Decode does not special-case them.
func Decode(raw []byte) Entry {
	var name Name11
	copy(name[:], raw[0:11])

	hi := binary.LittleEndian.Uint16(raw[20:22])
	lo := binary.LittleEndian.Uint16(raw[26:28])

	return Entry{
		Name:         name,
		Attributes:   raw[11],
		FirstCluster: (uint32(hi) << 16) | uint32(lo),
		FileSize:     binary.LittleEndian.Uint32(raw[28:32]),
	}
}

// DotName and DotDotName are the canonical 11-byte forms of "." and "..": the
// literal character(s) followed by space padding. These are NOT produced by
// ToFAT32Name, which would treat the leading '.' as the start of the
// extension and leave the base blank: "." becomes all spaces, and ".."
// becomes a blank base with a '.' extension.
var (
	DotName    = newPaddedName(".")
	DotDotName = newPaddedName("..")
)

func newPaddedName(literal string) Name11 {
	var name Name11
	for i := range name {
		name[i] = ' '
	}
	copy(name[:], literal)
	return name
}
