package iso9660

import (
	"io"
	"time"

	"github.com/Deterous/DiscUtils/vfs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// firstDescriptorLBA is where ECMA-119 §8.4 says the volume descriptor set
// starts: 16 sectors of system area precede it.
const firstDescriptorLBA = 16

// maxDescriptors bounds the descriptor scan so a stream missing a
// terminator can't make Open loop forever.
const maxDescriptors = 4096

// Reader is the decoded view of one ISO-9660 image: the selected variant,
// its root directory, and the machinery every other package-level
// operation is built from (spec.md §4.8/§C8).
type Reader struct {
	ctx     *isoContext
	volInfo VolumeInfo
}

// VolumeInfo summarizes the identifying fields of the descriptor Open
// selected, for callers that want to label a mounted image without
// walking its directory tree.
type VolumeInfo struct {
	VolumeIdentifier    string
	PublisherIdentifier string
	CreationTime        time.Time
}

// VolumeDescriptor returns the identifying fields of the volume descriptor
// this Reader was opened from.
func (r *Reader) VolumeDescriptor() VolumeInfo { return r.volInfo }

// VolumeLabel returns the selected descriptor's volume identifier, the
// name most tools show for a mounted image.
func (r *Reader) VolumeLabel() string { return r.volInfo.VolumeIdentifier }

// ClusterRange is one contiguous extent backing part of a file or
// directory: its starting LBA and a Count whose unit PathToClusters
// documents (sectors for a directory, bytes for a file).
type ClusterRange struct {
	LBA   uint32
	Count uint64
}

// SetLogger attaches a logger that receives diagnostic detail about
// descriptor and SUSP parsing. The reader logs nothing by default.
func (r *Reader) SetLogger(log *logrus.Entry) {
	r.ctx.log = log
}

// Close implements io.Closer. The reader never owns its backing stream, so
// this is a no-op.
func (r *Reader) Close() error { return nil }

// Detect reports whether stream's first volume descriptor sector carries
// the "CD001" standard identifier, per spec.md §4.8. It reads exactly one
// sector and never fails open on anything Open itself would reject for
// other reasons (missing terminator, no supported variant).
func Detect(stream io.ReaderAt) bool {
	if streamLen, err := streamLength(stream); err == nil && streamLen >= 0 && streamLen < firstDescriptorLBA*SectorSize+SectorSize {
		return false
	}

	buf, err := readFull(stream, firstDescriptorLBA*SectorSize, SectorSize)
	if err != nil {
		return false
	}

	_, err = parseBaseVolumeDescriptor(buf)
	return err == nil
}

// Open decodes stream's volume descriptor set, selects a variant by the
// priority order spec.md §4.8 specifies (Joliet, then Rock Ridge, then
// plain ISO-9660), and returns a Reader positioned at the root directory.
func Open(stream io.ReaderAt) (*Reader, error) {
	ctx := &isoContext{
		stream: stream,
		log:    newNopLogger(),
		cache:  newObjectCache(),
	}

	descriptors, err := scanDescriptors(stream, ctx.log)
	if err != nil {
		return nil, err
	}

	primary, supplementary := selectDescriptors(descriptors)

	var chosen *commonVolumeDescriptor

	switch {
	case supplementary != nil && supplementary.isJoliet():
		chosen = supplementary.common
		ctx.activeVariant = variantJoliet

	case primary != nil:
		chosen = primary.common
		ctx.activeVariant = variantISO9660

	default:
		return nil, errors.Wrap(ErrNoSupportedVariant, "no Joliet or primary descriptor found")
	}

	ctx.logicalBlockSize = uint32(chosen.logicalBlockSize)
	ctx.rootRecord = chosen.rootDirectoryRecord
	ctx.encoding = chosen.encoding

	if ctx.activeVariant == variantISO9660 {
		susp, err := detectRootSUSP(ctx)
		if err != nil {
			return nil, err
		}
		ctx.susp = susp
		if susp.detected && susp.rockRidgeIdentifier != "" {
			ctx.activeVariant = variantRockRidge
		}
	}

	if streamLen, err := streamLength(stream); err == nil && streamLen >= 0 {
		end := int64(chosen.rootDirectoryRecord.ExtentLBA)*int64(ctx.logicalBlockSize) + int64(chosen.rootDirectoryRecord.DataLength)
		if end > streamLen {
			return nil, errors.Wrap(ErrMalformed, "root directory extent exceeds stream length")
		}
	}

	return &Reader{
		ctx: ctx,
		volInfo: VolumeInfo{
			VolumeIdentifier:    chosen.volumeIdentifier,
			PublisherIdentifier: chosen.publisherIdentifier,
			CreationTime:        chosen.creationTime,
		},
	}, nil
}

// scanDescriptors reads the volume descriptor set starting at LBA 16 until
// a SetTerminator descriptor or EOF, per spec.md §4.1. log receives a
// warning if the scan is cut short by a read or parse error without ever
// reaching a terminator (an image that is truncated or missing one).
func scanDescriptors(stream io.ReaderAt, log *logrus.Entry) ([]volumeDescriptorSector, error) {
	var out []volumeDescriptorSector

	for i := 0; i < maxDescriptors; i++ {
		buf, err := readFull(stream, int64(firstDescriptorLBA+i)*SectorSize, SectorSize)
		if err != nil {
			if i == 0 {
				return nil, errors.Wrap(ErrNotISO9660, "reading first volume descriptor")
			}
			log.WithError(err).WithField("sector", firstDescriptorLBA+i).
				Warn("volume descriptor scan ended without a set terminator")
			break
		}

		vd, err := parseVolumeDescriptorSector(buf)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			log.WithError(err).WithField("sector", firstDescriptorLBA+i).
				Warn("volume descriptor scan ended without a set terminator")
			break
		}

		out = append(out, vd)
		if vd.base.kind == descriptorTypeTerminator {
			break
		}
	}

	if len(out) == 0 {
		return nil, errors.Wrap(ErrNotISO9660, "no volume descriptors found")
	}
	if len(out) == maxDescriptors && out[len(out)-1].base.kind != descriptorTypeTerminator {
		return nil, errors.Wrap(ErrMalformed, "volume descriptor set does not terminate")
	}
	return out, nil
}

// selectDescriptors picks the first primary descriptor and the first
// supplementary descriptor (if any) out of a scanned set.
func selectDescriptors(descriptors []volumeDescriptorSector) (primary, supplementary *volumeDescriptorSector) {
	for i := range descriptors {
		switch descriptors[i].base.kind {
		case descriptorTypePrimary:
			if primary == nil {
				primary = &descriptors[i]
			}
		case descriptorTypeSupplementary:
			if supplementary == nil {
				supplementary = &descriptors[i]
			}
		}
	}
	return primary, supplementary
}

// detectRootSUSP reads the root directory's own "." self record and runs
// the SP/ER detection pass spec.md §4.5 describes, once, for the lifetime
// of the reader.
func detectRootSUSP(ctx *isoContext) (susp, error) {
	sector, err := ctx.readAt(ctx.rootRecord.ExtentLBA, 0, int(ctx.logicalBlockSize))
	if err != nil {
		return susp{}, errors.Wrap(err, "reading root directory extent")
	}

	selfRecord, _, err := ReadDirectoryRecord(sector, 0, ctx.encoding)
	if err != nil {
		return susp{}, errors.Wrap(err, "root directory self record")
	}
	if selfRecord == nil {
		return susp{}, errors.Wrap(ErrMalformed, "root directory missing self record")
	}

	skipBytes, ok := detectSUSP(selfRecord.SystemUseData)
	if !ok {
		return susp{}, nil
	}

	data := selfRecord.SystemUseData[skipBytes:]
	entries, err := walkSystemUseArea(data, ctx.readContinuationArea, ctx.log)
	if err != nil {
		return susp{}, err
	}

	info := selectExtensions(entries)
	return susp{
		detected:            true,
		skipBytes:           skipBytes,
		rockRidgeIdentifier: info.rockRidgeIdentifier,
		otherExtensionIDs:   info.otherExtensionIDs,
	}, nil
}

// Root returns the root directory entry.
func (r *Reader) Root() (vfs.Entry, error) {
	override, err := r.rootOverride()
	if err != nil {
		return nil, err
	}
	return newDirEntry(r.ctx.rootRecord, override), nil
}

func (r *Reader) rootOverride() (rockRidgeOverride, error) {
	if !r.ctx.susp.detected || r.ctx.susp.rockRidgeIdentifier == "" {
		return rockRidgeOverride{}, nil
	}
	sector, err := r.ctx.readAt(r.ctx.rootRecord.ExtentLBA, 0, int(r.ctx.logicalBlockSize))
	if err != nil {
		return rockRidgeOverride{}, errors.Wrap(err, "reading root directory extent")
	}
	selfRecord, _, err := ReadDirectoryRecord(sector, 0, r.ctx.encoding)
	if err != nil || selfRecord == nil {
		return rockRidgeOverride{}, errors.Wrap(err, "root directory self record")
	}
	data := selfRecord.SystemUseData
	if r.ctx.susp.skipBytes < len(data) {
		data = data[r.ctx.susp.skipBytes:]
	} else {
		data = nil
	}
	entries, err := walkSystemUseArea(data, r.ctx.readContinuationArea, r.ctx.log)
	if err != nil {
		return rockRidgeOverride{}, err
	}
	return applyRockRidge(entries)
}

// Context returns the vfs.Context implementation backing this reader, for
// use with the vfs package's Resolve and EnumerateWildcard.
func (r *Reader) Context() vfs.Context { return r.ctx }

// resolveEntry resolves a backslash-separated path to its entry, per
// spec.md §4.7.
func (r *Reader) resolveEntry(path string) (*dirEntry, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}

	if len(vfs.Split(path)) == 0 {
		return root.(*dirEntry), nil
	}

	rootDir, err := r.ctx.Materialize(root)
	if err != nil {
		return nil, err
	}

	e, err := vfs.Resolve(r.ctx, rootDir, path)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		if errors.Is(err, vfs.ErrNotADirectory) {
			return nil, errors.Wrap(ErrNotADirectory, path)
		}
		if errors.Is(err, vfs.ErrSymlinkLoop) {
			return nil, errors.Wrap(ErrSymlinkLoop, path)
		}
		return nil, err
	}

	de, ok := e.(*dirEntry)
	if !ok {
		return nil, errors.Errorf("iso9660: foreign entry type %T", e)
	}
	return de, nil
}

// PathToClusters returns the extent ranges backing path's content, in disc
// order. For a directory this is a single range whose Count is the number
// of 2048-byte sectors its extent spans; for a file, Count is each
// extent's raw data length in bytes (spec.md §4.8).
func (r *Reader) PathToClusters(path string) ([]ClusterRange, error) {
	de, err := r.resolveEntry(path)
	if err != nil {
		return nil, err
	}

	if de.isDirectory {
		if de.record.FileUnitSize != 0 || de.record.InterleaveGapSize != 0 {
			return nil, errors.Wrap(ErrUnsupported, "interleaved directory extent")
		}
		count := uint64(ceilToSector(de.record.DataLength, r.ctx.logicalBlockSize)) / uint64(r.ctx.logicalBlockSize)
		return []ClusterRange{{LBA: de.record.ExtentLBA, Count: count}}, nil
	}

	var ranges []ClusterRange
	for _, rec := range de.extents() {
		ranges = append(ranges, ClusterRange{LBA: rec.ExtentLBA, Count: uint64(rec.DataLength)})
	}
	return ranges, nil
}
