// Package fcb contains helpers for reading, writing, and working with
// the CP/M File Control Block structure.
//
// The FCB is the 36-byte guest-memory record through which every
// file-related BDOS call names its file: a drive byte, an 8.3
// space-padded name, the extent counters which drive sequential I/O,
// and the allocation area which we reuse to carry a host file-handle
// identifier.
package fcb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SIZE contains the size of the FCB structure in guest memory.
const SIZE = 36

// RecordSize is the size of a single CP/M I/O record.
const RecordSize = 128

// recordsPerExtent is the number of 128-byte records in one extent.
const recordsPerExtent = 128

// extentSize is the span of one extent in bytes, 16K.
const extentSize = RecordSize * recordsPerExtent

// FCB is the in-memory representation of a File Control Block.
type FCB struct {
	// Drive holds the drive number for this entry: 0 is the
	// current drive, 1-16 name A-P explicitly.
	Drive uint8

	// Name holds the filename, space-padded, uppercase.
	Name [8]uint8

	// Type holds the file suffix, space-padded, uppercase.
	Type [3]uint8

	// Ex is the low byte of the extent counter.
	Ex uint8

	// S1 is reserved.
	S1 uint8

	// S2 is the high byte of the extent counter.
	S2 uint8

	// RC is the record count within the current extent.
	RC uint8

	// Al is the allocation area.  On a real system this holds
	// disk-block numbers; we store a host file-handle identifier
	// in the first two bytes instead.
	Al [16]uint8

	// Cr is the current record within the extent.
	Cr uint8

	// R0, R1, R2 form the 24-bit random record number.
	R0 uint8
	R1 uint8
	R2 uint8
}

// Find is a single result of a directory search: the name as CP/M
// sees it, and the path of the host file behind it.
type Find struct {
	// Host is the path of the file upon the host.
	Host string

	// Name is the CP/M-visible 8.3 name.
	Name string
}

// GetName returns the name component of an FCB entry, with the
// padding removed.
func (f *FCB) GetName() string {
	t := ""
	for _, c := range f.Name {
		if c != 0x00 {
			t += string(rune(c))
		}
	}
	return strings.TrimSpace(t)
}

// GetType returns the type/extension component of an FCB entry, with
// the padding removed.
func (f *FCB) GetType() string {
	t := ""
	for _, c := range f.Type {
		if c != 0x00 {
			t += string(rune(c))
		}
	}
	return strings.TrimSpace(t)
}

// GetFileName returns the name of the file this FCB describes, in
// "NAME.EXT" form, or just "NAME" when the type field is empty.
func (f *FCB) GetFileName() string {
	name := f.GetName()
	ext := f.GetType()

	if ext == "" {
		return name
	}
	return name + "." + ext
}

// AsBytes returns the FCB in a format suitable for copying to RAM.
func (f *FCB) AsBytes() []uint8 {
	var r []uint8

	r = append(r, f.Drive)
	r = append(r, f.Name[:]...)
	r = append(r, f.Type[:]...)
	r = append(r, f.Ex)
	r = append(r, f.S1)
	r = append(r, f.S2)
	r = append(r, f.RC)
	r = append(r, f.Al[:]...)
	r = append(r, f.Cr)
	r = append(r, f.R0)
	r = append(r, f.R1)
	r = append(r, f.R2)

	return r
}

// AsDirEnt returns the 32-byte directory-entry image of this FCB,
// which is what F_SFIRST/F_SNEXT deposit at the DMA address: the
// drive byte, then the eleven name/type bytes, then zeroes.
func (f *FCB) AsDirEnt() []uint8 {
	r := make([]uint8, 32)

	r[0] = f.Drive
	copy(r[1:9], f.Name[:])
	copy(r[9:12], f.Type[:])

	return r
}

// expandPad uppercases the given fragment, expands "*" into a run of
// "?" wildcards, and pads with spaces to the given width.
func expandPad(in string, width int) string {
	out := ""
	for _, c := range strings.ToUpper(in) {
		if c == '*' {
			out += strings.Repeat("?", width)
			break
		}
		out += string(c)
	}
	for len(out) < width {
		out += " "
	}
	return out[:width]
}

// FromString returns an FCB entry from the given string, which may
// carry a "X:" drive prefix and "*" wildcards.
func FromString(str string) FCB {
	tmp := FCB{}

	str = strings.ToUpper(str)

	// Does the string have a drive-prefix?
	if len(str) > 2 && str[1] == ':' {
		tmp.Drive = str[0] - 'A' + 1
		str = str[2:]
	}

	name := str
	ext := ""
	if idx := strings.LastIndex(str, "."); idx >= 0 {
		name = str[:idx]
		ext = str[idx+1:]
	}

	copy(tmp.Name[:], expandPad(name, 8))
	copy(tmp.Type[:], expandPad(ext, 3))

	return tmp
}

// FromHostName converts a host filename into an FCB, rejecting names
// which cannot be expressed in the 8.3 namespace.
func FromHostName(name string) (FCB, error) {
	base := name
	ext := ""
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		base = name[:idx]
		ext = name[idx+1:]
	}

	if base == "" {
		return FCB{}, fmt.Errorf("filename %s has no base", name)
	}
	if len(base) > 8 {
		return FCB{}, fmt.Errorf("filename %s has a base longer than eight characters", name)
	}
	if len(ext) > 3 {
		return FCB{}, fmt.Errorf("filename %s has an extension longer than three characters", name)
	}

	return FromString(name), nil
}

// FromBytes returns an FCB entry from the given bytes.
func FromBytes(bytes []uint8) FCB {
	tmp := FCB{}

	tmp.Drive = bytes[0]
	copy(tmp.Name[:], bytes[1:])
	copy(tmp.Type[:], bytes[9:])
	tmp.Ex = bytes[12]
	tmp.S1 = bytes[13]
	tmp.S2 = bytes[14]
	tmp.RC = bytes[15]
	copy(tmp.Al[:], bytes[16:])
	tmp.Cr = bytes[32]
	tmp.R0 = bytes[33]
	tmp.R1 = bytes[34]
	tmp.R2 = bytes[35]

	return tmp
}

// GetSequentialOffset returns the file offset described by the
// CR/EX/S2 counters: the position the next sequential record
// operation will use.
func (f *FCB) GetSequentialOffset() int64 {
	return int64(f.S2)*extentSize*32 +
		int64(f.Ex)*extentSize +
		int64(f.Cr)*RecordSize
}

// SetSequentialOffset updates the CR/EX/S2 counters to describe the
// given file offset.
func (f *FCB) SetSequentialOffset(offset int64) {
	f.S2 = uint8(offset / (extentSize * 32))
	f.Ex = uint8((offset % (extentSize * 32)) / extentSize)
	f.Cr = uint8((offset % extentSize) / RecordSize)
}

// IncreaseSequentialOffset advances the counters by one record.
func (f *FCB) IncreaseSequentialOffset() {
	f.SetSequentialOffset(f.GetSequentialOffset() + RecordSize)
}

// GetRandomRecord returns the 24-bit random record number.
func (f *FCB) GetRandomRecord() int64 {
	return int64(f.R0) | int64(f.R1)<<8 | int64(f.R2)<<16
}

// Pattern returns the eleven-byte name/type pattern of this FCB,
// which may contain "?" wildcards.
func (f *FCB) Pattern() [11]uint8 {
	var p [11]uint8
	copy(p[0:8], f.Name[:])
	copy(p[8:11], f.Type[:])
	return p
}

// DoesMatch reports whether the given host filename matches the
// name/type pattern of this FCB, where "?" matches any character.
func (f *FCB) DoesMatch(name string) bool {
	candidate, err := FromHostName(name)
	if err != nil {
		// Not expressible as 8.3, so never a match.
		return false
	}

	pat := f.Pattern()
	got := candidate.Pattern()

	for i, p := range pat {
		if p == '?' {
			continue
		}
		if p != got[i] {
			return false
		}
	}
	return true
}

// GetMatches walks the given host directory and returns every
// non-directory entry which matches the pattern in this FCB.
func (f *FCB) GetMatches(dir string) ([]Find, error) {
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var res []Find
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f.DoesMatch(entry.Name()) {
			res = append(res, Find{
				Host: filepath.Join(dir, entry.Name()),
				Name: strings.ToUpper(entry.Name()),
			})
		}
	}

	return res, nil
}
