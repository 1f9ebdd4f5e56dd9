package iso9660

import "github.com/pkg/errors"

// Sentinel errors. Callers should compare with errors.Is; every wrapped
// occurrence carries additional context via errors.Wrapf.
var (
	// ErrNotISO9660 is returned when the standard identifier at sector 16
	// does not read "CD001".
	ErrNotISO9660 = errors.New("not an ISO-9660 image")

	// ErrMalformed covers descriptor truncation, record length overflow,
	// a non-terminating descriptor set, a CE chain that does not
	// terminate, and other structural violations of ECMA-119/SUSP.
	ErrMalformed = errors.New("malformed ISO-9660 image")

	// ErrNoSupportedVariant is returned when none of the Joliet,
	// Rock Ridge, or plain ISO-9660 variants could be selected.
	ErrNoSupportedVariant = errors.New("no supported ISO-9660 variant found")

	// ErrFileNotFound is returned when a path resolves to nothing.
	ErrFileNotFound = errors.New("file not found")

	// ErrDirectoryNotFound is returned when a directory path resolves to
	// nothing.
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrNotADirectory is returned when a path operation expected a
	// directory but found a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory is returned when a path operation expected a file
	// but found a directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrUnsupported is returned by PathToClusters for an interleaved
	// (non-contiguous) directory extent. The reader exposes no write or
	// create operation.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrSymlinkLoop is returned when symlink resolution exceeds the
	// hop bound.
	ErrSymlinkLoop = errors.New("symlink resolution exceeded hop limit")
)
