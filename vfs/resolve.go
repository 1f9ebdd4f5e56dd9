package vfs

import "fmt"

// MaxSymlinkHops bounds the number of symlink hops Resolve will follow
// before giving up with ErrSymlinkLoop.
const MaxSymlinkHops = 20

// ErrSymlinkLoop is returned by Resolve when symlink resolution exceeds
// MaxSymlinkHops.
var ErrSymlinkLoop = fmt.Errorf("vfs: symlink resolution exceeded %d hops", MaxSymlinkHops)

// ErrNotFound is returned by Resolve when no entry exists at path.
var ErrNotFound = fmt.Errorf("vfs: no such file or directory")

// ErrNotADirectory is returned by Resolve when a non-final path component
// names a file rather than a directory.
var ErrNotADirectory = fmt.Errorf("vfs: path component is not a directory")

// Resolve looks up path starting from root, descending through ctx for each
// intermediate directory and following symlinks (bounded by MaxSymlinkHops)
// whenever an intermediate or final component resolves to one.
func Resolve(ctx Context, root Directory, path string) (Entry, error) {
	return resolve(ctx, root, "", Split(path), MaxSymlinkHops)
}

// resolve walks components starting from dir, which is located at dirPath.
// hopsLeft bounds the total number of symlink hops remaining across the
// whole call tree.
func resolve(ctx Context, dir Directory, dirPath string, components []string, hopsLeft int) (Entry, error) {
	if len(components) == 0 {
		return nil, ErrNotFound
	}

	cur := dir
	curPath := dirPath

	for i, name := range components {
		entry, ok := cur.GetEntryByName(name)
		if !ok {
			return nil, ErrNotFound
		}

		last := i == len(components)-1

		if entry.IsSymlink() {
			if hopsLeft <= 0 {
				return nil, ErrSymlinkLoop
			}

			target, err := ctx.ReadLink(entry)
			if err != nil {
				return nil, err
			}

			resolvedPath := ResolveRelative(curPath, target)
			if !last {
				resolvedPath = Join(append(Split(resolvedPath), components[i+1:]...)...)
			}

			return resolve(ctx, dir, dirPath, Split(resolvedPath), hopsLeft-1)
		}

		if last {
			return entry, nil
		}

		if !entry.IsDirectory() {
			return nil, ErrNotADirectory
		}

		next, err := ctx.Materialize(entry)
		if err != nil {
			return nil, err
		}

		cur = next
		curPath = Join(append(Split(curPath), name)...)
	}

	return nil, ErrNotFound
}
