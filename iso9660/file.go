package iso9660

import (
	"io"

	"github.com/pkg/errors"
)

// fileReader is the read-only, seekable view over a file entry's content
// spec.md §4.9 requires OpenFile to return. A single-extent file is just a
// byte window over the underlying stream; a multi-extent file is the
// logical concatenation of its extents' contents, in disc order
// (spec.md §4.6).
type fileReader struct {
	ctx    *isoContext
	ranges []extentRange
	length int64
	pos    int64
}

// extentRange is one contiguous run of bytes within the backing stream.
type extentRange struct {
	streamOffset int64
	length       int64
}

// newFileReader builds a fileReader over a file entry's extents.
func newFileReader(ctx *isoContext, e *dirEntry) *fileReader {
	ranges := make([]extentRange, 0, 1+len(e.extraExtents))
	var total int64
	for _, rec := range e.extents() {
		off := int64(rec.ExtentLBA) * int64(ctx.logicalBlockSize)
		n := int64(rec.DataLength)
		ranges = append(ranges, extentRange{streamOffset: off, length: n})
		total += n
	}
	return &fileReader{ctx: ctx, ranges: ranges, length: total}
}

func (f *fileReader) Read(p []byte) (int, error) {
	if f.pos >= f.length {
		return 0, io.EOF
	}

	n, err := f.readAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *fileReader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = f.length
	default:
		return 0, errors.Errorf("iso9660: invalid seek whence %d", whence)
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, errors.Errorf("iso9660: negative seek position %d", newPos)
	}
	f.pos = newPos
	return f.pos, nil
}

// ReadAt implements io.ReaderAt without disturbing the stream's cursor,
// reading across extent boundaries transparently.
func (f *fileReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.length {
		return 0, io.EOF
	}
	return f.readAt(p, off)
}

func (f *fileReader) readAt(p []byte, logicalOffset int64) (int, error) {
	if logicalOffset >= f.length {
		return 0, io.EOF
	}
	if int64(len(p)) > f.length-logicalOffset {
		p = p[:f.length-logicalOffset]
	}

	total := 0
	remaining := p

	extentStart := int64(0)
	for _, r := range f.ranges {
		extentEnd := extentStart + r.length
		if logicalOffset >= extentEnd {
			extentStart = extentEnd
			continue
		}
		if len(remaining) == 0 {
			break
		}

		withinExtent := logicalOffset - extentStart
		toRead := r.length - withinExtent
		if toRead > int64(len(remaining)) {
			toRead = int64(len(remaining))
		}

		chunk, err := readFull(f.ctx.stream, r.streamOffset+withinExtent, int(toRead))
		if err != nil {
			return total, errors.Wrap(err, "reading file extent")
		}
		n := copy(remaining, chunk)
		total += n
		remaining = remaining[n:]
		logicalOffset += int64(n)

		extentStart = extentEnd
	}

	if len(remaining) != 0 && total == 0 {
		return 0, io.EOF
	}
	return total, nil
}
