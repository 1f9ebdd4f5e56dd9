package iso9660

import (
	"strings"

	"github.com/Deterous/DiscUtils/vfs"
	"github.com/pkg/errors"
)

// directory is a materialized directory listing: the surviving, grouped,
// Rock-Ridge-overridden entries of one directory extent (spec.md §3/§C6).
// It implements vfs.Directory.
type directory struct {
	entries []*dirEntry
	byName  map[string]*dirEntry
}

func (d *directory) GetEntryByName(name string) (vfs.Entry, bool) {
	e, ok := d.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return e, true
}

func (d *directory) AllEntries() []vfs.Entry {
	out := make([]vfs.Entry, len(d.entries))
	for i, e := range d.entries {
		out[i] = e
	}
	return out
}

// Materialize implements vfs.Context: it resolves a directory entry to its
// listing, memoizing the result in the reader's object cache so repeated
// lookups of the same on-disc directory return the same value (spec.md §3
// "Lifecycle").
func (c *isoContext) Materialize(e vfs.Entry) (vfs.Directory, error) {
	de, ok := e.(*dirEntry)
	if !ok {
		return nil, errors.Errorf("iso9660: foreign entry type %T", e)
	}
	if !de.isDirectory {
		return nil, errors.Wrap(ErrNotADirectory, de.displayName)
	}

	id := de.UniqueCacheID()
	if d, ok := c.cache.getDirectory(id); ok {
		return d, nil
	}

	d, err := c.readDirectory(de.record.ExtentLBA, de.record.DataLength)
	if err != nil {
		return nil, err
	}

	c.cache.putDirectory(id, d)
	return d, nil
}

// ReadLink implements vfs.Context: it returns a symlink entry's target,
// already translated to the backslash path convention.
func (c *isoContext) ReadLink(e vfs.Entry) (string, error) {
	de, ok := e.(*dirEntry)
	if !ok {
		return "", errors.Errorf("iso9660: foreign entry type %T", e)
	}
	if !de.isSymlink {
		return "", errors.Errorf("iso9660: %s is not a symlink", de.displayName)
	}
	return de.symlink, nil
}

// readDirectory reads a directory's extent (dataLength bytes starting at
// lba) and decodes it into a directory: every contained directory record is
// parsed sector by sector, self/parent and relocated (RE) records are
// dropped, Rock Ridge overrides are applied, and records sharing a file
// identifier with the "not final extent" flag set are grouped into a
// single multi-extent dirEntry (spec.md §4.6).
func (c *isoContext) readDirectory(lba uint32, dataLength uint32) (*directory, error) {
	raw, err := c.readRawRecords(lba, dataLength)
	if err != nil {
		return nil, err
	}

	rockRidge := c.susp.detected && c.susp.rockRidgeIdentifier != ""

	var filtered []*DirectoryRecord
	overrides := make(map[*DirectoryRecord]rockRidgeOverride)

	for _, rec := range raw {
		if rec.IsSelf() || rec.IsParent() {
			continue
		}

		var override rockRidgeOverride
		if rockRidge {
			entries, err := c.walkRecordSystemUse(rec)
			if err != nil {
				return nil, err
			}
			override, err = applyRockRidge(entries)
			if err != nil {
				return nil, err
			}
		}

		if override.isRelocated {
			continue
		}

		if override.isCL {
			child, childErr := c.readRelocatedChild(override.relocatedChild)
			if childErr != nil {
				return nil, childErr
			}
			override.name = "" // keep the parent's own identifier as the display name
			override.nameComplete = false
			child.FileIdentifier = rec.FileIdentifier
			rec = child
		}

		filtered = append(filtered, rec)
		overrides[rec] = override
	}

	entries := groupMultiExtent(filtered, overrides)

	d := &directory{entries: entries, byName: make(map[string]*dirEntry, len(entries))}
	for _, e := range entries {
		d.byName[e.searchName] = e
		// A caller may still address a file by its raw, versioned ISO
		// identifier (e.g. "README.TXT;1"); accept that spelling too.
		if raw := strings.ToLower(e.record.FileIdentifier); raw != e.searchName {
			d.byName[raw] = e
		}
	}
	return d, nil
}

// readRelocatedChild reads the "." self record of a CL-relocated
// directory's real extent, so the redirecting parent entry inherits the
// child's attributes (mode, size, timestamps) while keeping its own name
// (spec.md §4.4's CL/PL/RE handling). This assumes the child extent's "."
// record is the first record of its first sector, which RRIP guarantees
// for a conformant relocated directory.
func (c *isoContext) readRelocatedChild(childLBA uint32) (*DirectoryRecord, error) {
	sector, err := c.readAt(childLBA, 0, int(c.logicalBlockSize))
	if err != nil {
		return nil, errors.Wrap(err, "reading relocated directory extent")
	}
	rec, _, err := ReadDirectoryRecord(sector, 0, c.encoding)
	if err != nil {
		return nil, errors.Wrap(err, "relocated directory self record")
	}
	if rec == nil {
		return nil, errors.Wrap(ErrMalformed, "relocated directory missing self record")
	}
	return rec, nil
}

// readRawRecords decodes every directory record in an extent, in disc
// order, without filtering or applying overrides.
func (c *isoContext) readRawRecords(lba uint32, dataLength uint32) ([]*DirectoryRecord, error) {
	data, err := c.readAt(lba, 0, int(ceilToSector(dataLength, c.logicalBlockSize)))
	if err != nil {
		return nil, errors.Wrap(err, "reading directory extent")
	}
	if uint32(len(data)) > dataLength {
		data = data[:dataLength]
	}

	var records []*DirectoryRecord
	sectorSize := int(c.logicalBlockSize)

	for sectorStart := 0; sectorStart < len(data); sectorStart += sectorSize {
		sectorEnd := sectorStart + sectorSize
		if sectorEnd > len(data) {
			sectorEnd = len(data)
		}
		sector := data[sectorStart:sectorEnd]

		offset := 0
		for offset < len(sector) {
			rec, consumed, err := ReadDirectoryRecord(sector, offset, c.encoding)
			if err != nil {
				return nil, err
			}
			if consumed == 0 {
				break // zero-padding: advance to next sector
			}
			records = append(records, rec)
			offset += consumed
		}
	}

	return records, nil
}

// walkRecordSystemUse runs the SUSP walk (with CE-following) over one
// directory record's system-use data, applying the context's skip-bytes.
func (c *isoContext) walkRecordSystemUse(rec *DirectoryRecord) ([]suspEntry, error) {
	data := rec.SystemUseData
	if c.susp.skipBytes < len(data) {
		data = data[c.susp.skipBytes:]
	} else {
		data = nil
	}
	return walkSystemUseArea(data, c.readContinuationArea, c.log)
}

// ceilToSector rounds n up to the next multiple of sectorSize.
func ceilToSector(n uint32, sectorSize uint32) uint32 {
	if sectorSize == 0 {
		return n
	}
	return ((n + sectorSize - 1) / sectorSize) * sectorSize
}

// groupMultiExtent collapses consecutive records sharing a file identifier
// where all but the last carry the "not final extent" flag into a single
// dirEntry whose extraExtents records the continuation ranges, per
// spec.md §4.6's "GetEntriesByName" rationale.
func groupMultiExtent(records []*DirectoryRecord, overrides map[*DirectoryRecord]rockRidgeOverride) []*dirEntry {
	var out []*dirEntry

	i := 0
	for i < len(records) {
		rec := records[i]
		group := []*DirectoryRecord{rec}

		j := i + 1
		for !rec.IsFinalExtent() && j < len(records) && records[j].FileIdentifier == records[i].FileIdentifier {
			group = append(group, records[j])
			rec = records[j]
			j++
		}

		e := newDirEntry(group[0], overrides[group[0]])
		if len(group) > 1 {
			e.extraExtents = group[1:]
		}
		out = append(out, e)

		i = j
	}

	return out
}
