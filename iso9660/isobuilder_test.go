package iso9660

import (
	"bytes"
	"time"
)

// imageBuilder assembles a minimal in-memory ECMA-119 image sector by
// sector, so tests can exercise the reader without an on-disk fixture.
// It is deliberately low-level: callers compute their own LBAs.
type imageBuilder struct {
	sectors [][]byte
}

func newImageBuilder() *imageBuilder {
	return &imageBuilder{}
}

// sector returns sector lba's buffer, extending the image with empty
// sectors as needed.
func (b *imageBuilder) sector(lba int) []byte {
	for len(b.sectors) <= lba {
		b.sectors = append(b.sectors, make([]byte, SectorSize))
	}
	return b.sectors[lba]
}

// writeAt copies data into sector lba starting at byte offset.
func (b *imageBuilder) writeAt(lba, offset int, data []byte) {
	copy(b.sector(lba)[offset:], data)
}

func (b *imageBuilder) bytes() []byte {
	var buf bytes.Buffer
	for _, s := range b.sectors {
		buf.Write(s)
	}
	return buf.Bytes()
}

// readerAt wraps the finished image for io.ReaderAt.
func (b *imageBuilder) readerAt() *bytes.Reader {
	return bytes.NewReader(b.bytes())
}

func bothEndian16(v uint16) []byte {
	out := make([]byte, 4)
	out[0] = byte(v)
	out[1] = byte(v >> 8)
	out[2] = byte(v >> 8)
	out[3] = byte(v)
	return out
}

func bothEndian32(v uint32) []byte {
	out := make([]byte, 8)
	out[0] = byte(v)
	out[1] = byte(v >> 8)
	out[2] = byte(v >> 16)
	out[3] = byte(v >> 24)
	out[4] = byte(v >> 24)
	out[5] = byte(v >> 16)
	out[6] = byte(v >> 8)
	out[7] = byte(v)
	return out
}

func paddedASCII(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

// volumeTimeBytes encodes t in the 17-byte volume timestamp format.
func volumeTimeBytes(t time.Time) [17]byte {
	var b [17]byte
	s := t.UTC().Format("20060102150405") + "00"
	copy(b[:16], s)
	return b
}

// writeCommonDescriptor writes the Primary/Supplementary-shared fields of
// a volume descriptor at lba, leaving the identifying byte/version/escape
// fields to the caller.
func (b *imageBuilder) writeCommonDescriptor(lba int, rootLBA, rootLen uint32, logicalBlockSize uint16, volID string) {
	b.writeAt(lba, 40, paddedASCII(volID, 32))
	b.writeAt(lba, 80, bothEndian32(1)) // volumeSpaceSize, unused by the reader
	b.writeAt(lba, 120, bothEndian16(1))
	b.writeAt(lba, 124, bothEndian16(1))
	b.writeAt(lba, 128, bothEndian16(logicalBlockSize))
	b.writeAt(lba, 132, bothEndian32(0))

	root := make([]byte, 34)
	root[0] = 34
	copy(root[2:10], bothEndian32(rootLBA))
	copy(root[10:18], bothEndian32(rootLen))
	copy(root[18:25], directoryTimeBytes(time.Unix(0, 0).UTC()))
	root[25] = flagDirectory
	root[32] = 1
	root[33] = 0 // "\x00" self identifier
	b.writeAt(lba, 156, root)

	vt := volumeTimeBytes(time.Unix(0, 0).UTC())
	b.writeAt(lba, 813, vt[:])
}

// suspEntryBytes renders one SUSP tag/length/version/payload entry.
func suspEntryBytes(tag string, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	copy(out[0:2], tag)
	out[2] = byte(4 + len(payload))
	out[3] = 1
	copy(out[4:], payload)
	return out
}

// spEntryBytes renders a root "." record's SP entry (7 bytes total).
func spEntryBytes() []byte {
	return suspEntryBytes("SP", []byte{0xbe, 0xef, 0})
}

// erEntryBytes renders an ER entry advertising the given Rock Ridge
// extension identifier, with empty descriptor/source strings and extension
// version 1.
func erEntryBytes(identifier string) []byte {
	payload := make([]byte, 4+len(identifier))
	payload[0] = byte(len(identifier))
	payload[1] = 0
	payload[2] = 0
	payload[3] = 1
	copy(payload[4:], identifier)
	return suspEntryBytes("ER", payload)
}

// pxEntryBytes renders a PX entry carrying only the POSIX mode field.
func pxEntryBytes(mode uint32) []byte {
	return suspEntryBytes("PX", bothEndian32(mode))
}

// nmEntryBytes renders an NM entry for a (possibly fragment of a) name.
func nmEntryBytes(flags byte, name string) []byte {
	payload := append([]byte{flags}, []byte(name)...)
	return suspEntryBytes("NM", payload)
}

// pnEntryBytes renders a PN entry carrying a device's major/minor numbers.
func pnEntryBytes(major, minor uint32) []byte {
	payload := append(bothEndian32(major), bothEndian32(minor)...)
	return suspEntryBytes("PN", payload)
}

// slComponentBytes renders one SL component record.
func slComponentBytes(flags byte, content string) []byte {
	out := make([]byte, 2+len(content))
	out[0] = flags
	out[1] = byte(len(content))
	copy(out[2:], content)
	return out
}

// slEntryBytes renders an SL entry from already-encoded component bytes.
func slEntryBytes(flags byte, components ...[]byte) []byte {
	var payload []byte
	payload = append(payload, flags)
	for _, c := range components {
		payload = append(payload, c...)
	}
	return suspEntryBytes("SL", payload)
}

func directoryTimeBytes(t time.Time) []byte {
	t = t.UTC()
	return []byte{
		byte(t.Year() - 1900),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
		0,
	}
}

// writePrimaryDescriptor writes a type-1 descriptor at lba.
func (b *imageBuilder) writePrimaryDescriptor(lba int, rootLBA, rootLen uint32, volID string) {
	b.writeAt(lba, 0, []byte{byte(descriptorTypePrimary)})
	b.writeAt(lba, 1, []byte(standardIdentifier))
	b.writeAt(lba, 6, []byte{1})
	b.writeCommonDescriptor(lba, rootLBA, rootLen, SectorSize, volID)
}

// writeSupplementaryDescriptor writes a type-2 descriptor at lba with the
// given Joliet escape sequence (pass nil for a non-Joliet supplementary
// descriptor).
func (b *imageBuilder) writeSupplementaryDescriptor(lba int, rootLBA, rootLen uint32, volID string, escape []byte) {
	b.writeAt(lba, 0, []byte{byte(descriptorTypeSupplementary)})
	b.writeAt(lba, 1, []byte(standardIdentifier))
	b.writeAt(lba, 6, []byte{1})
	if escape != nil {
		b.writeAt(lba, 88, escape)
	}
	b.writeCommonDescriptor(lba, rootLBA, rootLen, SectorSize, volID)
}

func (b *imageBuilder) writeTerminator(lba int) {
	b.writeAt(lba, 0, []byte{byte(descriptorTypeTerminator)})
	b.writeAt(lba, 1, []byte(standardIdentifier))
	b.writeAt(lba, 6, []byte{1})
}

// dirRecordEntry describes one child record to place in a directory extent
// built by writeDirectory.
type dirRecordEntry struct {
	identifier     string // raw bytes, e.g. "README.TXT;1", "\x00", "\x01"
	extentLBA      uint32
	dataLength     uint32
	isDir          bool
	notFinalExtent bool
	systemUse      []byte
}

// encodeDirRecord renders one directory record's bytes (ECMA-119 §9.1),
// even-padded.
func encodeDirRecord(e dirRecordEntry) []byte {
	identLen := len(e.identifier)
	length := 33 + identLen
	if identLen%2 == 0 {
		length++
	}
	length += len(e.systemUse)

	rec := make([]byte, length)
	rec[0] = byte(length)
	copy(rec[2:10], bothEndian32(e.extentLBA))
	copy(rec[10:18], bothEndian32(e.dataLength))
	copy(rec[18:25], directoryTimeBytes(time.Unix(0, 0).UTC()))
	if e.isDir {
		rec[25] |= flagDirectory
	}
	if e.notFinalExtent {
		rec[25] |= flagNotFinalExtent
	}
	rec[32] = byte(identLen)
	copy(rec[33:33+identLen], e.identifier)

	sysStart := 33 + identLen
	if identLen%2 == 0 {
		sysStart++
	}
	copy(rec[sysStart:], e.systemUse)

	return rec
}

// writeDirectory lays out entries as consecutive directory records in
// sector lba, including the self/parent records a real extent would carry.
func (b *imageBuilder) writeDirectory(lba int, selfLBA uint32, selfLen uint32, parentLBA, parentLen uint32, selfSystemUse []byte, entries []dirRecordEntry) {
	offset := 0
	write := func(e dirRecordEntry) {
		rec := encodeDirRecord(e)
		b.writeAt(lba, offset, rec)
		offset += len(rec)
	}

	write(dirRecordEntry{identifier: "\x00", extentLBA: selfLBA, dataLength: selfLen, isDir: true, systemUse: selfSystemUse})
	write(dirRecordEntry{identifier: "\x01", extentLBA: parentLBA, dataLength: parentLen, isDir: true})
	for _, e := range entries {
		write(e)
	}
}
