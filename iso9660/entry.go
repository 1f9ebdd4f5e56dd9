package iso9660

import (
	"io/fs"
	"strings"
	"time"

	"github.com/Deterous/DiscUtils/fsutil"
	"github.com/pkg/errors"
)

// dirEntry is the lightweight, cacheable handle spec.md §C6/§3 describes: a
// decoded DirectoryRecord plus whatever Rock Ridge overrides apply to it.
// It implements vfs.Entry.
type dirEntry struct {
	record *DirectoryRecord

	// extraExtents holds sibling records sharing this entry's file
	// identifier and parent, in disc order, for a multi-extent file
	// (spec.md §3/§4.6 "GetEntriesByName"). Empty for single-extent
	// files and for all directories.
	extraExtents []*DirectoryRecord

	displayName string
	searchName  string

	isDirectory bool
	isSymlink   bool
	symlink     string // backslash-separated target, already translated from RRIP's '/'

	recordingTime time.Time

	posixMode uint32
	hasPosix  bool
	device    isoDevice
	hasDevice bool
}

// isoDevice satisfies fsutil.Device with the major/minor numbers an RRIP PN
// entry records for a character- or block-special file (RRIP §4.1.2).
type isoDevice struct {
	major uint32
	minor uint32
}

func (d isoDevice) Major() uint64 { return uint64(d.major) }
func (d isoDevice) Minor() uint64 { return uint64(d.minor) }

func (e *dirEntry) IsDirectory() bool   { return e.isDirectory }
func (e *dirEntry) IsSymlink() bool     { return e.isSymlink }
func (e *dirEntry) FileName() string    { return e.displayName }
func (e *dirEntry) SearchName() string  { return e.searchName }
func (e *dirEntry) UniqueCacheID() int64 { return int64(e.record.ExtentLBA) }

// The following methods satisfy io/fs.DirEntry and the fsutil
// ReadlinkDirEntry/DeviceDirEntry interfaces, so a caller walking the
// filesystem through a standard fs.WalkDir-shaped API can still recover
// Rock Ridge symlink targets and device numbers.

func (e *dirEntry) Name() string { return e.displayName }

func (e *dirEntry) IsDir() bool { return e.isDirectory }

func (e *dirEntry) Type() fs.FileMode {
	mode := fs.FileMode(0)
	switch {
	case e.isDirectory:
		mode |= fs.ModeDir
	case e.isSymlink:
		mode |= fs.ModeSymlink
	case e.hasDevice:
		mode |= fs.ModeDevice
		if e.hasPosix && e.posixMode&modeTypeMask == modeTypeChr {
			mode |= fs.ModeCharDevice
		}
	}
	return mode.Type()
}

func (e *dirEntry) Info() (fs.FileInfo, error) {
	return entryFileInfo{e}, nil
}

// Readlink implements fsutil.ReadlinkDirEntry.
func (e *dirEntry) Readlink() (string, error) {
	if !e.isSymlink {
		return "", errors.Errorf("iso9660: %s is not a symlink", e.displayName)
	}
	return e.symlink, nil
}

// GetDevice implements fsutil.DeviceDirEntry.
func (e *dirEntry) GetDevice() (fsutil.Device, error) {
	if !e.hasDevice {
		return nil, errors.Errorf("iso9660: %s has no device entry", e.displayName)
	}
	return e.device, nil
}

// entryFileInfo adapts a dirEntry to io/fs.FileInfo for Info().
type entryFileInfo struct {
	e *dirEntry
}

func (fi entryFileInfo) Name() string       { return fi.e.displayName }
func (fi entryFileInfo) Size() int64        { return int64(fi.e.totalDataLength()) }
func (fi entryFileInfo) Mode() fs.FileMode  { return fi.e.Type() }
func (fi entryFileInfo) ModTime() time.Time { return fi.e.recordingTime }
func (fi entryFileInfo) IsDir() bool        { return fi.e.isDirectory }
func (fi entryFileInfo) Sys() any           { return fi.e.record }

// extents returns the entry's records in disc order: its own record
// followed by any multi-extent continuations.
func (e *dirEntry) extents() []*DirectoryRecord {
	return append([]*DirectoryRecord{e.record}, e.extraExtents...)
}

// totalDataLength sums the data length of every extent backing this entry.
func (e *dirEntry) totalDataLength() uint64 {
	var total uint64
	for _, rec := range e.extents() {
		total += uint64(rec.DataLength)
	}
	return total
}

// formatFileName strips the ISO-9660 version suffix (";N") from a raw
// directory identifier by truncating at the first ';', per spec.md §4.6. A
// '.' just before the ';' (as in "README.;1") is kept. Idempotent: calling
// it twice never strips a second suffix, since the result no longer
// contains ';'.
func formatFileName(name string) string {
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	return name
}

// newDirEntry builds a dirEntry from a decoded record plus any Rock Ridge
// override already computed for it, applying the override rules spec.md
// §4.4 lists: NM replaces the name, PX's file-type field can mark a
// symlink even when the ISO flags byte said "file", SL provides the
// target, and TF replaces the recording time.
func newDirEntry(record *DirectoryRecord, override rockRidgeOverride) *dirEntry {
	e := &dirEntry{
		record:        record,
		recordingTime: record.RecordingTime,
		isDirectory:   record.IsDirectory(),
	}

	if override.nameComplete {
		e.displayName = override.name
	} else {
		e.displayName = displayName(record.FileIdentifier)
	}
	e.searchName = strings.ToLower(e.displayName)

	if override.hasTime {
		e.recordingTime = override.recordingTime
	}

	if override.posixMode != 0 {
		e.hasPosix = true
		e.posixMode = override.posixMode
		e.isDirectory = override.posixMode&modeTypeMask == modeTypeDir
		e.isSymlink = override.isSymlink
	}

	if e.isSymlink && override.symlinkTarget != "" {
		// joinSymlinkComponents already wrote a leading "/" when the SL
		// chain carried a root component, so an absolute target translates
		// straight through. A relative target (no root component) stays
		// relative, so the vfs layer resolves it against the symlink's own
		// directory rather than the filesystem root (spec.md §4.7).
		e.symlink = strings.ReplaceAll(override.symlinkTarget, "/", "\\")
	}

	if override.hasDevice {
		e.hasDevice = true
		e.device = isoDevice{major: override.deviceMajor, minor: override.deviceMinor}
	}

	return e
}

// displayName formats a raw (possibly already-NM-overridden) identifier for
// display: the self/parent special bytes are translated to "."/"..", and
// every other identifier (Joliet or plain ISO-9660; Rock-Ridge-named
// entries never reach here, since an NM override takes priority before
// displayName is called) has its version suffix stripped.
func displayName(name string) string {
	switch name {
	case "\x00":
		return "."
	case "\x01":
		return ".."
	}
	return formatFileName(name)
}
