package iso9660

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// descriptorType identifies a volume descriptor's kind (ECMA-119 §8.1.1).
type descriptorType byte

const (
	descriptorTypeBoot          descriptorType = 0
	descriptorTypePrimary       descriptorType = 1
	descriptorTypeSupplementary descriptorType = 2
	descriptorTypePartition     descriptorType = 3
	descriptorTypeTerminator    descriptorType = 255
)

const standardIdentifier = "CD001"

// joliet escape sequences that select UCS-2 levels 1, 2, and 3
// respectively (ECMA-119:1999 Annex, Joliet).
var jolietEscapeSequences = [][3]byte{
	{0x25, 0x2f, 0x40},
	{0x25, 0x2f, 0x43},
	{0x25, 0x2f, 0x45},
}

// baseVolumeDescriptor is the common 7-byte header every descriptor kind
// shares.
type baseVolumeDescriptor struct {
	kind    descriptorType
	version byte
}

// parseBaseVolumeDescriptor validates the standard identifier of a raw
// 2048-byte descriptor sector and records its type and version; the
// version byte is not checked.
func parseBaseVolumeDescriptor(buf []byte) (baseVolumeDescriptor, error) {
	if len(buf) < 7 {
		return baseVolumeDescriptor{}, errors.Wrap(ErrMalformed, "descriptor sector shorter than 7 bytes")
	}

	id := string(buf[1:6])
	if id != standardIdentifier {
		return baseVolumeDescriptor{}, errors.Wrapf(ErrNotISO9660, "standard identifier %q", id)
	}

	return baseVolumeDescriptor{
		kind:    descriptorType(buf[0]),
		version: buf[6],
	}, nil
}

// commonVolumeDescriptor holds the fields Primary and Supplementary
// descriptors share (ECMA-119 §8.4/§8.5), decoded at the offsets spec.md §3
// names.
type commonVolumeDescriptor struct {
	base baseVolumeDescriptor

	volumeIdentifier    string
	publisherIdentifier string
	volumeSpaceSize     uint32

	volumeSetSize        uint16
	volumeSequenceNumber uint16
	logicalBlockSize     uint16

	pathTableSize       uint32
	lPathTableLBA       uint32
	optionalLPathTable  uint32
	mPathTableLBA       uint32
	optionalMPathTable  uint32

	rootDirectoryRecord *DirectoryRecord

	creationTime time.Time

	encoding Encoding
}

// parseCommonVolumeDescriptor decodes the primary/supplementary-shared
// fields of a 2048-byte descriptor buffer. encoding is used to decode the
// embedded root directory record's identifier (always "\x00" in practice,
// so the choice rarely matters) and the volume identifier string.
func parseCommonVolumeDescriptor(buf []byte, base baseVolumeDescriptor, encoding Encoding) (*commonVolumeDescriptor, error) {
	if len(buf) < 2048 {
		return nil, errors.Wrap(ErrMalformed, "volume descriptor sector shorter than 2048 bytes")
	}

	volID, err := decodeString(buf[40:72], encoding)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "volume identifier")
	}

	publisherID, err := decodeString(buf[318:446], encoding)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "publisher identifier")
	}

	root, _, err := ReadDirectoryRecord(buf[156:190], 0, encoding)
	if err != nil {
		return nil, errors.Wrap(err, "embedded root directory record")
	}

	return &commonVolumeDescriptor{
		base:                base,
		volumeIdentifier:    volID,
		publisherIdentifier: publisherID,
		volumeSpaceSize:     bothEndianUint32(buf[80:88]),
		volumeSetSize:       bothEndianUint16(buf[120:124]),
		volumeSequenceNumber: bothEndianUint16(buf[124:128]),
		logicalBlockSize:    bothEndianUint16(buf[128:132]),
		pathTableSize:       bothEndianUint32(buf[132:140]),
		lPathTableLBA:       binary.LittleEndian.Uint32(buf[140:144]),
		optionalLPathTable:  binary.LittleEndian.Uint32(buf[144:148]),
		mPathTableLBA:       bitSwapUint32(binary.LittleEndian.Uint32(buf[148:152])),
		optionalMPathTable:  bitSwapUint32(binary.LittleEndian.Uint32(buf[152:156])),
		rootDirectoryRecord: root,
		creationTime:        decodeVolumeTime(toArray17(buf[813:830])),
		encoding:            encoding,
	}, nil
}

// detectEncoding inspects the escape-sequence field of a supplementary
// volume descriptor (offset 88, 32 bytes) and returns EncodingUCS2BE if it
// starts with one of the three Joliet escape sequences, else EncodingASCII.
func detectEncoding(escapeSequences []byte) Encoding {
	if len(escapeSequences) < 3 {
		return EncodingASCII
	}
	for _, seq := range jolietEscapeSequences {
		if escapeSequences[0] == seq[0] && escapeSequences[1] == seq[1] && escapeSequences[2] == seq[2] {
			return EncodingUCS2BE
		}
	}
	return EncodingASCII
}

func toArray17(b []byte) [17]byte {
	var out [17]byte
	copy(out[:], b)
	return out
}

// volumeDescriptorSector is the outcome of decoding one 2048-byte sector of
// the volume descriptor set: the common fields if the sector was a Primary
// or Supplementary descriptor, nil for Boot/Partition/Terminator sectors
// (which carry no fields this reader needs).
type volumeDescriptorSector struct {
	base   baseVolumeDescriptor
	common *commonVolumeDescriptor
}

// parseVolumeDescriptorSector decodes a single descriptor sector, choosing
// ASCII or Joliet UCS-2BE encoding for Supplementary descriptors based on
// their escape sequences.
func parseVolumeDescriptorSector(buf []byte) (volumeDescriptorSector, error) {
	base, err := parseBaseVolumeDescriptor(buf)
	if err != nil {
		return volumeDescriptorSector{}, err
	}

	switch base.kind {
	case descriptorTypePrimary:
		common, err := parseCommonVolumeDescriptor(buf, base, EncodingASCII)
		if err != nil {
			return volumeDescriptorSector{}, err
		}
		return volumeDescriptorSector{base: base, common: common}, nil

	case descriptorTypeSupplementary:
		encoding := detectEncoding(buf[88:120])
		common, err := parseCommonVolumeDescriptor(buf, base, encoding)
		if err != nil {
			return volumeDescriptorSector{}, err
		}
		return volumeDescriptorSector{base: base, common: common}, nil

	default:
		return volumeDescriptorSector{base: base}, nil
	}
}

// isJoliet reports whether a Supplementary descriptor's escape sequences
// actually selected Joliet's UCS-2BE encoding, rather than merely being
// present (spec.md §9's documented open question: a Supplementary
// descriptor without a Joliet escape sequence must NOT be accepted by the
// Joliet variant).
func (v volumeDescriptorSector) isJoliet() bool {
	return v.base.kind == descriptorTypeSupplementary && v.common != nil && v.common.encoding == EncodingUCS2BE
}
