package iso9660

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// suspSPMagic is the two "check bytes" an SP entry's payload must carry
// (SUSP-112 §5.3).
var suspSPMagic = [2]byte{0xbe, 0xef}

// susp entry tags this parser recognises by name (spec.md §4.4).
const (
	tagSP = "SP"
	tagCE = "CE"
	tagER = "ER"
	tagRR = "RR"
	tagPX = "PX"
	tagPN = "PN"
	tagNM = "NM"
	tagSL = "SL"
	tagCL = "CL"
	tagPL = "PL"
	tagRE = "RE"
	tagTF = "TF"
	tagST = "ST"
)

// rockRidgeIdentifiers are the ER extension identifier strings that signal
// Rock Ridge support (spec.md §3).
var rockRidgeIdentifiers = map[string]bool{
	"RRIP_1991A": true,
	"IEEE_P1282": true,
	"IEEE_1282":  true,
}

// suspEntry is one tag/length/version/payload record inside a system-use
// area. Unknown tags are preserved as opaque entries with their raw bytes
// in payload.
type suspEntry struct {
	tag     string
	version byte
	payload []byte
}

// suspContinuationRef describes a CE entry's out-of-line continuation area
// (SUSP-112 §5.1).
type suspContinuationRef struct {
	extentLBA uint32
	offset    uint32
	length    uint32
}

// extensionInfo summarizes what selectExtensions discovered about SUSP and
// Rock Ridge from one directory record's walked system-use entries.
type extensionInfo struct {
	suspDetected         bool
	skipBytes            int
	rockRidgeIdentifier  string
	otherExtensionIDs    []string
}

// maxContinuationHops bounds CE-chain following, guarding against a
// pathological or hostile image whose continuation areas loop.
const maxContinuationHops = 64

// walkSystemUseArea iterates the SUSP entries in data, following any CE
// entries via fetch (which must read exactly the requested byte range from
// the underlying stream), and returns every entry encountered in order. An
// "ST" entry stops iteration for the containing record, per spec.md §4.4.
// log receives a warning if the chain is cut off for exceeding
// maxContinuationHops; it may be nil.
func walkSystemUseArea(data []byte, fetch func(ref suspContinuationRef) ([]byte, error), log *logrus.Entry) ([]suspEntry, error) {
	var entries []suspEntry
	hops := 0

	for {
		stop, next, err := parseSystemUseEntries(data, &entries)
		if err != nil {
			return nil, err
		}
		if stop || next == nil {
			break
		}

		hops++
		if hops > maxContinuationHops {
			if log != nil {
				log.WithField("hops", hops).Warn("SUSP continuation chain exceeded hop limit")
			}
			return nil, errors.Wrap(ErrMalformed, "SUSP continuation chain did not terminate")
		}

		data, err = fetch(*next)
		if err != nil {
			return nil, errors.Wrap(err, "reading SUSP continuation area")
		}
	}

	return entries, nil
}

// parseSystemUseEntries appends every entry found in data to out. It
// returns stop=true if an ST entry was seen (iteration must not continue
// even into a CE that might follow), or next != nil if a CE entry was seen
// and must be followed before iteration can continue.
func parseSystemUseEntries(data []byte, out *[]suspEntry) (stop bool, next *suspContinuationRef, err error) {
	offset := 0

	for offset+4 <= len(data) {
		tag := string(data[offset : offset+2])
		length := int(data[offset+2])
		version := data[offset+3]

		if length < 4 || offset+length > len(data) {
			break
		}

		payload := data[offset+4 : offset+length]

		switch tag {
		case tagST:
			return true, nil, nil
		case tagCE:
			ref, err := parseCEPayload(payload)
			if err != nil {
				return false, nil, err
			}
			*out = append(*out, suspEntry{tag: tag, version: version, payload: payload})
			return false, &ref, nil
		default:
			*out = append(*out, suspEntry{tag: tag, version: version, payload: payload})
		}

		offset += length
	}

	return false, nil, nil
}

// parseCEPayload decodes a CE entry's 24-byte payload (SUSP-112 §5.1):
// the continuation area's extent LBA, byte offset, and length, each stored
// both-endian.
func parseCEPayload(payload []byte) (suspContinuationRef, error) {
	if len(payload) < 24 {
		return suspContinuationRef{}, errors.Wrap(ErrMalformed, "CE entry shorter than 24 bytes")
	}
	return suspContinuationRef{
		extentLBA: bothEndianUint32(payload[0:8]),
		offset:    bothEndianUint32(payload[8:16]),
		length:    bothEndianUint32(payload[16:24]),
	}, nil
}

// detectSUSP inspects the root directory's self ("." ) record's system-use
// data for the SP magic at offset 0, per spec.md §4.4. It returns the
// number of skip bytes SP declares, or ok=false if SUSP is not in use.
func detectSUSP(selfSystemUseData []byte) (skipBytes int, ok bool) {
	if len(selfSystemUseData) < 7 {
		return 0, false
	}
	if selfSystemUseData[0] != 'S' || selfSystemUseData[1] != 'P' {
		return 0, false
	}
	if selfSystemUseData[4] != suspSPMagic[0] || selfSystemUseData[5] != suspSPMagic[1] {
		return 0, false
	}
	return int(selfSystemUseData[6]), true
}

// selectExtensions inspects a walked list of SUSP entries (the root
// directory's "." record, with skip bytes already applied) and determines
// which Rock Ridge identifier, if any, is in effect, per spec.md §4.4's
// "Extension selection" rules.
func selectExtensions(entries []suspEntry) extensionInfo {
	info := extensionInfo{suspDetected: true}

	sawLegacyRR := false
	for _, e := range entries {
		switch e.tag {
		case tagER:
			id, _, _, err := parseERPayload(e.payload)
			if err != nil {
				continue
			}
			if rockRidgeIdentifiers[id] {
				if info.rockRidgeIdentifier == "" {
					info.rockRidgeIdentifier = id
				}
			} else {
				info.otherExtensionIDs = append(info.otherExtensionIDs, id)
			}
		case tagRR:
			sawLegacyRR = true
		}
	}

	if info.rockRidgeIdentifier == "" && sawLegacyRR {
		info.rockRidgeIdentifier = "RRIP_1991A"
	}

	return info
}

// parseERPayload decodes an ER entry's payload (SUSP-112 §5.5): extension
// identifier, descriptor, and source strings, each length-prefixed.
func parseERPayload(payload []byte) (identifier, descriptor, source string, err error) {
	if len(payload) < 4 {
		return "", "", "", io.ErrUnexpectedEOF
	}

	idLen := int(payload[0])
	descLen := int(payload[1])
	srcLen := int(payload[2])

	end := 4 + idLen + descLen + srcLen
	if len(payload) < end {
		return "", "", "", io.ErrUnexpectedEOF
	}

	identifier = string(payload[4 : 4+idLen])
	descriptor = string(payload[4+idLen : 4+idLen+descLen])
	source = string(payload[4+idLen+descLen : end])
	return identifier, descriptor, source, nil
}
