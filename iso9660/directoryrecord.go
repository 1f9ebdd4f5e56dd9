package iso9660

import (
	"time"

	"github.com/pkg/errors"
)

// directory record flag bits (ECMA-119 §9.1.6).
const (
	flagHidden         = 1 << 0
	flagDirectory      = 1 << 1
	flagAssociated     = 1 << 2
	flagRecord         = 1 << 3
	flagProtection     = 1 << 4
	flagNotFinalExtent = 1 << 7
)

// DirectoryRecord is one decoded directory record: a file's or
// subdirectory's entry inside its parent directory's extent.
type DirectoryRecord struct {
	ExtentLBA            uint32
	DataLength           uint32
	RecordingTime        time.Time
	Flags                byte
	FileUnitSize         byte
	InterleaveGapSize    byte
	VolumeSequenceNumber uint16
	FileIdentifier       string
	SystemUseData        []byte
}

// IsDirectory reports whether the Directory flag bit is set.
func (r *DirectoryRecord) IsDirectory() bool { return r.Flags&flagDirectory != 0 }

// IsHidden reports whether the Hidden flag bit is set.
func (r *DirectoryRecord) IsHidden() bool { return r.Flags&flagHidden != 0 }

// IsFinalExtent reports whether this record is the last (or only) extent of
// a possibly multi-extent file.
func (r *DirectoryRecord) IsFinalExtent() bool { return r.Flags&flagNotFinalExtent == 0 }

// IsSelf reports whether FileIdentifier names "." (the directory itself).
func (r *DirectoryRecord) IsSelf() bool { return r.FileIdentifier == "\x00" }

// IsParent reports whether FileIdentifier names ".." (the parent directory).
func (r *DirectoryRecord) IsParent() bool { return r.FileIdentifier == "\x01" }

// ReadDirectoryRecord decodes one directory record starting at offset
// within buf. It returns the record and the number of bytes consumed
// (buf[offset], the record's own length byte). A zero byte at offset
// signals "no more records in this sector" — consumed is 0 and record is
// nil, with no error; callers advance to the next sector boundary.
func ReadDirectoryRecord(buf []byte, offset int, encoding Encoding) (*DirectoryRecord, int, error) {
	if offset >= len(buf) {
		return nil, 0, errors.Wrap(ErrMalformed, "directory record offset past end of sector")
	}

	length := int(buf[offset])
	if length == 0 {
		return nil, 0, nil
	}
	if offset+length > len(buf) {
		return nil, 0, errors.Wrap(ErrMalformed, "directory record overruns its sector")
	}
	if length < 34 {
		return nil, 0, errors.Wrap(ErrMalformed, "directory record shorter than its fixed fields")
	}

	rec := buf[offset : offset+length]

	identifierLen := int(rec[32])
	identStart := 33
	identEnd := identStart + identifierLen
	if identEnd > length {
		return nil, 0, errors.Wrap(ErrMalformed, "directory record identifier overruns record")
	}

	identifier, err := decodeString(rec[identStart:identEnd], encoding)
	if err != nil {
		return nil, 0, errors.Wrap(err, "directory record file identifier")
	}

	sysStart := identEnd
	if identifierLen%2 == 0 {
		sysStart++
	}
	if sysStart > length {
		sysStart = length
	}

	var recordingTime [7]byte
	copy(recordingTime[:], rec[18:25])

	return &DirectoryRecord{
		ExtentLBA:            bothEndianUint32(rec[2:10]),
		DataLength:           bothEndianUint32(rec[10:18]),
		RecordingTime:        decodeDirectoryTime(recordingTime),
		Flags:                rec[25],
		FileUnitSize:         rec[26],
		InterleaveGapSize:    rec[27],
		VolumeSequenceNumber: bothEndianUint16(rec[28:32]),
		FileIdentifier:       identifier,
		SystemUseData:        rec[sysStart:length],
	}, length, nil
}
