package iso9660

import (
	"io"

	"github.com/sirupsen/logrus"
)

// variant identifies which of the three supported interpretations a Reader
// selected at construction time (spec.md §4.8, §9's documented open
// question about the Joliet/ISO-9660 priority bug).
type variant int

const (
	variantISO9660 variant = iota
	variantJoliet
	variantRockRidge
)

func (v variant) String() string {
	switch v {
	case variantJoliet:
		return "Joliet"
	case variantRockRidge:
		return "RockRidge"
	default:
		return "ISO9660"
	}
}

// susp holds the SUSP/Rock-Ridge state detected on the volume's root
// directory, fixed for the lifetime of the reader (spec.md §4.5).
type susp struct {
	detected            bool
	skipBytes           int
	rockRidgeIdentifier string
	otherExtensionIDs   []string
}

// isoContext is the immutable-after-init container spec.md §4.5/§C5
// describes: the selected descriptor, the backing stream, the active
// character encoding, and the SUSP settings that apply to every directory
// lookup for the lifetime of the reader.
type isoContext struct {
	stream io.ReaderAt

	activeVariant    variant
	logicalBlockSize uint32

	rootRecord *DirectoryRecord

	encoding Encoding
	susp     susp

	log *logrus.Entry

	cache *objectCache
}

// readAt reads n bytes starting byteOffset bytes into LBA lba. Directory,
// root-record and SUSP continuation reads go through it (spec.md §9's
// "dedicated sector fetcher" note); the descriptor scan and fileReader call
// readFull on the stream directly.
func (c *isoContext) readAt(lba uint32, byteOffset uint32, n int) ([]byte, error) {
	offset := int64(lba)*int64(c.logicalBlockSize) + int64(byteOffset)
	return readFull(c.stream, offset, n)
}

// readContinuationArea fetches the bytes a CE entry points to, for
// walkSystemUseArea's fetch callback.
func (c *isoContext) readContinuationArea(ref suspContinuationRef) ([]byte, error) {
	return c.readAt(ref.extentLBA, ref.offset, int(ref.length))
}

// streamLength returns the size of the underlying stream, used to validate
// that every extent fits within it (spec.md §3's invariant).
func streamLength(r io.ReaderAt) (int64, error) {
	if sizer, ok := r.(interface{ Size() int64 }); ok {
		return sizer.Size(), nil
	}
	if seeker, ok := r.(io.Seeker); ok {
		cur, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := seeker.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return end, nil
	}
	return -1, nil
}
