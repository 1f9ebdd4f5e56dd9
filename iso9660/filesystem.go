package iso9660

import (
	"io"
	"regexp"

	"github.com/Deterous/DiscUtils/vfs"
	"github.com/pkg/errors"
)

// matchAll is used in place of a wildcard when the caller supplies no
// pattern: unlike a bare "*", it is not subject to the DOS 8.3 rule that
// an extension-less wildcard only matches extension-less names.
var matchAll = regexp.MustCompile(`(?i)^.*$`)

// DirectoryExists reports whether path names an existing directory.
func (r *Reader) DirectoryExists(path string) bool {
	de, err := r.resolveEntry(path)
	return err == nil && de.isDirectory
}

// FileExists reports whether path names an existing file.
func (r *Reader) FileExists(path string) bool {
	de, err := r.resolveEntry(path)
	return err == nil && !de.isDirectory
}

// Exists reports whether path names an existing entry of either kind.
func (r *Reader) Exists(path string) bool {
	_, err := r.resolveEntry(path)
	return err == nil
}

// GetDirectories lists the subdirectories of path, optionally filtered by a
// DOS-style wildcard pattern and descended into recursively. Results are
// returned as backslash-separated paths relative to the filesystem root, in
// on-disc order (depth-first when recursive).
func (r *Reader) GetDirectories(path, pattern string, recursive bool) ([]string, error) {
	return r.getFileSystemEntries(path, pattern, recursive, entryKindDirectory)
}

// GetFiles lists the files of path, optionally filtered and recursed the
// same way GetDirectories is.
func (r *Reader) GetFiles(path, pattern string, recursive bool) ([]string, error) {
	return r.getFileSystemEntries(path, pattern, recursive, entryKindFile)
}

// GetFileSystemEntries lists both files and directories of path.
func (r *Reader) GetFileSystemEntries(path, pattern string, recursive bool) ([]string, error) {
	return r.getFileSystemEntries(path, pattern, recursive, entryKindAny)
}

type entryKind int

const (
	entryKindAny entryKind = iota
	entryKindFile
	entryKindDirectory
)

func (r *Reader) getFileSystemEntries(path, pattern string, recursive bool, kind entryKind) ([]string, error) {
	de, err := r.resolveEntry(path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, errors.Wrap(ErrDirectoryNotFound, path)
		}
		return nil, err
	}
	if !de.isDirectory {
		return nil, errors.Wrap(ErrNotADirectory, path)
	}

	dir, err := r.ctx.Materialize(de)
	if err != nil {
		return nil, err
	}

	re := matchAll
	if pattern != "" {
		var err error
		re, err = vfs.CompileWildcard(pattern)
		if err != nil {
			return nil, errors.Wrap(err, "compiling wildcard pattern")
		}
	}

	basePath := vfs.Split(path)

	var out []string
	err = vfs.EnumerateWildcard(r.ctx, dir, re, recursive, func(dirPath string, e vfs.Entry) {
		switch kind {
		case entryKindFile:
			if e.IsDirectory() {
				return
			}
		case entryKindDirectory:
			if !e.IsDirectory() {
				return
			}
		}
		components := append(append([]string{}, basePath...), vfs.Split(dirPath)...)
		out = append(out, vfs.Join(append(components, e.FileName())...))
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// OpenFile returns a read-only, seekable stream over path's content. This
// reader is read-only by construction, so unlike a read/write filesystem's
// open call it takes no mode or access flags and has no write/create path
// to reject.
func (r *Reader) OpenFile(path string) (io.ReadSeeker, error) {
	de, err := r.resolveEntry(path)
	if err != nil {
		return nil, err
	}
	if de.isDirectory {
		return nil, errors.Wrap(ErrIsADirectory, path)
	}
	return newFileReader(r.ctx, de), nil
}

// GetFileLength returns the byte length of path's content, summed across
// all of its extents.
func (r *Reader) GetFileLength(path string) (uint64, error) {
	de, err := r.resolveEntry(path)
	if err != nil {
		return 0, err
	}
	if de.isDirectory {
		return 0, errors.Wrap(ErrIsADirectory, path)
	}
	return de.totalDataLength(), nil
}
