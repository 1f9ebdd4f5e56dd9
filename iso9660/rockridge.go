package iso9660

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// POSIX file-type bits as they appear in a PX entry's mode field
// (RRIP §4.1.1). Kept local rather than imported from syscall so this
// package decodes identically on every host OS.
const (
	modeTypeMask = 0170000
	modeTypeFIFO = 0010000
	modeTypeChr  = 0020000
	modeTypeDir  = 0040000
	modeTypeBlk  = 0060000
	modeTypeReg  = 0100000
	modeTypeLnk  = 0120000
	modeTypeSock = 0140000
)

// rockRidgeOverride is the accumulated effect of a directory record's Rock
// Ridge entries: the fields spec.md §4.4 says override the plain ISO-9660
// interpretation of a record.
type rockRidgeOverride struct {
	name           string
	nameComplete   bool
	posixMode      uint32
	isSymlink      bool
	symlinkTarget  string
	symlinkPending []rockRidgeSLComponent
	recordingTime  time.Time
	hasTime        bool
	relocatedChild uint32
	isRelocated    bool
	isCL           bool

	deviceMajor uint32
	deviceMinor uint32
	hasDevice   bool
}

type rockRidgeSLComponent struct {
	flags   byte
	content []byte
}

const (
	slFlagContinue = 1 << 0
	slFlagCurrent  = 1 << 1
	slFlagParent   = 1 << 2
	slFlagRoot     = 1 << 3
)

const (
	nmFlagContinue = 1 << 0
	nmFlagCurrent  = 1 << 1
	nmFlagParent   = 1 << 2
)

// applyRockRidge folds the Rock Ridge entries discovered for one directory
// record into a rockRidgeOverride, per spec.md §4.4's per-entry override
// rules. entries must already have CE continuation areas flattened in (see
// walkSystemUseArea).
func applyRockRidge(entries []suspEntry) (rockRidgeOverride, error) {
	var o rockRidgeOverride

	for _, e := range entries {
		switch e.tag {
		case tagPX:
			mode, err := parsePXPayload(e.payload)
			if err != nil {
				return o, errors.Wrap(err, "PX entry")
			}
			o.posixMode = mode
			o.isSymlink = mode&modeTypeMask == modeTypeLnk

		case tagNM:
			if len(e.payload) < 1 {
				return o, errors.Wrap(ErrMalformed, "NM entry shorter than 1 byte")
			}
			flags := e.payload[0]
			switch {
			case flags&nmFlagCurrent != 0:
				o.name += "."
			case flags&nmFlagParent != 0:
				o.name += ".."
			default:
				o.name += string(e.payload[1:])
			}
			if flags&nmFlagContinue == 0 {
				o.nameComplete = true
			}

		case tagSL:
			if len(e.payload) < 1 {
				return o, errors.Wrap(ErrMalformed, "SL entry shorter than 1 byte")
			}
			flags := e.payload[0]
			components, err := parseSLComponents(e.payload[1:])
			if err != nil {
				return o, errors.Wrap(err, "SL entry")
			}
			o.symlinkPending = append(o.symlinkPending, components...)
			if flags&slFlagContinue == 0 {
				o.symlinkTarget = joinSymlinkComponents(o.symlinkPending)
			}

		case tagTF:
			t, ok, err := parseTFPayload(e.payload)
			if err != nil {
				return o, errors.Wrap(err, "TF entry")
			}
			if ok {
				o.recordingTime = t
				o.hasTime = true
			}

		case tagCL:
			if len(e.payload) < 8 {
				return o, errors.Wrap(ErrMalformed, "CL entry shorter than 8 bytes")
			}
			o.isCL = true
			o.relocatedChild = bothEndianUint32(e.payload[0:8])

		case tagPL, tagRE:
			o.isRelocated = true

		case tagPN:
			major, minor, err := parsePNPayload(e.payload)
			if err != nil {
				return o, errors.Wrap(err, "PN entry")
			}
			o.deviceMajor = major
			o.deviceMinor = minor
			o.hasDevice = true
		}
	}

	return o, nil
}

// parsePXPayload decodes a PX entry's POSIX file mode, its first
// both-endian field (RRIP §4.1.1). The links, uid, gid and optional inode
// fields that follow are not decoded.
func parsePXPayload(payload []byte) (mode uint32, err error) {
	if len(payload) < 8 {
		return 0, errors.Wrap(ErrMalformed, "PX entry shorter than 8 bytes")
	}
	return bothEndianUint32(payload[0:8]), nil
}

// parseSLComponents decodes the repeated component records of an SL
// entry's payload (RRIP §4.1.3.1), after the leading flags byte.
func parseSLComponents(data []byte) ([]rockRidgeSLComponent, error) {
	var out []rockRidgeSLComponent
	offset := 0
	for offset+2 <= len(data) {
		flags := data[offset]
		n := int(data[offset+1])
		if offset+2+n > len(data) {
			return nil, errors.Wrap(ErrMalformed, "SL component overruns entry")
		}
		out = append(out, rockRidgeSLComponent{flags: flags, content: data[offset+2 : offset+2+n]})
		offset += 2 + n
	}
	return out, nil
}

// joinSymlinkComponents renders a completed SL component sequence as a
// '/'-separated target string, per spec.md §4.4. The caller translates '/'
// to the backslash convention the vfs package expects before handing the
// string to a caller.
func joinSymlinkComponents(components []rockRidgeSLComponent) string {
	var sb strings.Builder
	for i, c := range components {
		if c.flags&slFlagRoot != 0 {
			// The root marker's "/" is itself the separator to whatever
			// follows; never double it up with the generic separator below.
			sb.WriteString("/")
			continue
		}

		switch {
		case c.flags&slFlagParent != 0:
			sb.WriteString("..")
		case c.flags&slFlagCurrent != 0:
			sb.WriteString(".")
		default:
			sb.Write(c.content)
		}

		last := i == len(components)-1
		if !last && c.flags&slFlagContinue == 0 {
			sb.WriteString("/")
		}
	}
	return sb.String()
}

// tfFlag bits select which optional timestamp fields a TF entry carries
// (RRIP §4.1.6).
const (
	tfFlagCreation   = 1 << 0
	tfFlagModify     = 1 << 1
	tfFlagAccess     = 1 << 2
	tfFlagAttributes = 1 << 3
	tfFlagLongForm   = 1 << 7
)

// parseTFPayload decodes a TF entry and returns the modify timestamp, the
// field spec.md §4.4 says should replace a record's recording time. ok is
// false if the entry carries no modify timestamp.
func parseTFPayload(payload []byte) (t time.Time, ok bool, err error) {
	if len(payload) < 1 {
		return time.Time{}, false, errors.Wrap(ErrMalformed, "TF entry shorter than 1 byte")
	}

	flags := payload[0]
	longForm := flags&tfFlagLongForm != 0
	size := 7
	if longForm {
		size = 17
	}

	offset := 1
	order := []struct {
		bit  byte
		want bool
	}{
		{tfFlagCreation, false},
		{tfFlagModify, true},
		{tfFlagAccess, false},
		{tfFlagAttributes, false},
	}

	for _, f := range order {
		if flags&f.bit == 0 {
			continue
		}
		if offset+size > len(payload) {
			return time.Time{}, false, errors.Wrap(ErrMalformed, "TF entry shorter than its flags declare")
		}
		if f.want {
			field := payload[offset : offset+size]
			if longForm {
				var b [17]byte
				copy(b[:], field)
				return decodeVolumeTime(b), true, nil
			}
			var b [7]byte
			copy(b[:], field)
			return decodeDirectoryTime(b), true, nil
		}
		offset += size
	}

	return time.Time{}, false, nil
}

// parsePNPayload decodes a PN entry's device major/minor numbers
// (RRIP §4.1.2), each both-endian.
func parsePNPayload(payload []byte) (major, minor uint32, err error) {
	if len(payload) < 16 {
		return 0, 0, errors.Wrap(ErrMalformed, "PN entry shorter than 16 bytes")
	}
	return bothEndianUint32(payload[0:8]), bothEndianUint32(payload[8:16]), nil
}
