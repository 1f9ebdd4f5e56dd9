package iso9660

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SectorSize is the logical block size every conformant ECMA-119 image
// uses. Callers must still read the value out of the volume descriptor
// rather than hard-coding this constant when computing byte offsets (the
// descriptor's LogicalBlockSize field is the source of truth), but in
// practice it is always 2048.
const SectorSize = 2048

// Encoding identifies the character set directory identifiers and volume
// strings are stored in.
type Encoding int

const (
	// EncodingASCII is the default ECMA-119 d-character/a-character set.
	EncodingASCII Encoding = iota
	// EncodingUCS2BE is Joliet's big-endian UCS-2, signalled by an escape
	// sequence in a supplementary volume descriptor.
	EncodingUCS2BE
)

// bothEndianUint16 reads a "both-endian" field: the value stored first in
// little-endian, then in big-endian, occupying 4 bytes total. The
// little-endian half is authoritative; the big-endian half is not checked,
// since real-world discs sometimes disagree between the two.
func bothEndianUint16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b[0:2])
}

// bothEndianUint32 reads a "both-endian" field occupying 8 bytes total,
// returning the little-endian half.
func bothEndianUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[0:4])
}

// bitSwapUint32 reverses the byte order of an already-little-endian-decoded
// 32-bit value. Used to recover the big-endian type-M path table LBA, which
// ECMA-119 stores as a genuinely big-endian field but which callers may
// have read with a little-endian primitive.
func bitSwapUint32(v uint32) uint32 {
	return (v&0x000000ff)<<24 |
		(v&0x0000ff00)<<8 |
		(v&0x00ff0000)>>8 |
		(v&0xff000000)>>24
}

// decodeString decodes b according to enc and right-trims trailing ASCII
// spaces. A 1-byte input is returned unchanged as a single-character
// string, preserving the special "\x00"/"\x01" self/parent identifiers
// regardless of encoding.
func decodeString(b []byte, enc Encoding) (string, error) {
	if len(b) == 1 {
		return string(b), nil
	}

	var s string
	switch enc {
	case EncodingUCS2BE:
		decoded, err := decodeUCS2BE(b)
		if err != nil {
			return "", err
		}
		s = decoded
	default:
		s = string(b)
	}

	return trimTrailingASCIISpace(s), nil
}

func trimTrailingASCIISpace(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// decodeUCS2BE decodes a big-endian UCS-2 (Joliet) byte string using
// golang.org/x/text's UTF-16 codec rather than a hand-rolled utf16.Decode
// loop.
func decodeUCS2BE(b []byte) (string, error) {
	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	out, _, err := transform.Bytes(decoder, b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// epochSentinel is the Unix epoch (1970-01-01 00:00:00 UTC), yielded when a
// volume or directory timestamp is absent or unparseable.
var epochSentinel = time.Unix(0, 0).UTC()

// decodeVolumeTime decodes the 17-byte ASCII-digit volume timestamp format
// (ECMA-119 8.4.26.1): 4-digit year, 2-digit month/day/hour/min/sec,
// 2-digit hundredths, and a trailing signed 15-minute GMT offset byte. A
// burner bug workaround replaces NUL digits with '0' before parsing.
// Month, day, hour, minute and second are clamped into their legal ranges.
// A value of all zero/NUL digits, a non-digit character, or a year outside
// 1..9999 yields epochSentinel rather than an error.
func decodeVolumeTime(b [17]byte) time.Time {
	digits := make([]byte, 16)
	allZero := true
	for i := 0; i < 16; i++ {
		c := b[i]
		if c == 0 {
			c = '0'
		}
		digits[i] = c
		if c != '0' {
			allZero = false
		}
	}

	if allZero {
		return epochSentinel
	}

	field := func(lo, hi int) int {
		n := 0
		for _, c := range digits[lo:hi] {
			if c < '0' || c > '9' {
				return -1
			}
			n = n*10 + int(c-'0')
		}
		return n
	}

	year := field(0, 4)
	month := field(4, 6)
	day := field(6, 8)
	hour := field(8, 10)
	minute := field(10, 12)
	second := field(12, 14)
	hundredths := field(14, 16)

	if year < 0 || month < 0 || day < 0 || hour < 0 || minute < 0 || second < 0 || hundredths < 0 {
		return epochSentinel
	}

	month = clamp(month, 1, 12)
	day = clamp(day, 1, 31)
	hour = clamp(hour, 0, 23)
	minute = clamp(minute, 0, 59)
	second = clamp(second, 0, 59)

	if year < 1 || year > 9999 {
		return epochSentinel
	}

	offsetSlots := int(int8(b[16]))
	loc := gmtOffsetLocation(offsetSlots)

	return time.Date(year, time.Month(month), day, hour, minute, second, hundredths*10*1000*1000, loc)
}

// decodeDirectoryTime decodes the 7-byte directory record timestamp format
// (ECMA-119 9.1.5): years since 1900, month, day, hour, minute, second, and
// a signed 15-minute GMT offset. Out-of-range fields clamp rather than
// error; the function never fails.
func decodeDirectoryTime(b [7]byte) time.Time {
	year := 1900 + int(b[0])
	month := clamp(int(b[1]), 1, 12)
	day := clamp(int(b[2]), 1, 31)
	hour := clamp(int(b[3]), 0, 23)
	minute := clamp(int(b[4]), 0, 59)
	second := clamp(int(b[5]), 0, 59)
	offsetSlots := int(int8(b[6]))

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, gmtOffsetLocation(offsetSlots))
}

func gmtOffsetLocation(fifteenMinuteSlots int) *time.Location {
	seconds := fifteenMinuteSlots * 15 * 60
	if seconds == 0 {
		return time.UTC
	}
	return time.FixedZone("", seconds)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// readFull reads exactly n bytes at offset from r, the sole I/O primitive
// every decoder built on top of codec.go goes through.
func readFull(r io.ReaderAt, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// readByteAt reads a single byte at offset.
func readByteAt(r io.ReaderAt, offset int64) (byte, error) {
	b, err := readFull(r, offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// joinBytes concatenates parts into one newly allocated byte slice.
func joinBytes(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}
