package vfs

import "strings"

// Separator is the path component separator used throughout this package,
// matching the Windows-style convention DiscUtils paths use.
const Separator = '\\'

// Split breaks path into its non-empty components. Both "" and "\\" denote
// the root and split to an empty slice.
func Split(path string) []string {
	raw := strings.Split(path, string(Separator))
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join combines path components with Separator. An empty input list joins
// to "" (root).
func Join(components ...string) string {
	return strings.Join(components, string(Separator))
}

// Dir returns the parent path of path: the path formed by dropping the last
// component. Dir of a root-level path is "".
func Dir(path string) string {
	components := Split(path)
	if len(components) <= 1 {
		return ""
	}
	return Join(components[:len(components)-1]...)
}

// IsAbsolute reports whether target is rooted, i.e. starts with Separator.
func IsAbsolute(target string) bool {
	return strings.HasPrefix(target, string(Separator))
}

// ResolveRelative computes the path a symlink's target resolves to, given
// the path of the directory containing the symlink. An absolute target
// replaces the base entirely; a relative target is resolved against base,
// with "." and ".." components collapsed in order.
func ResolveRelative(base, target string) string {
	var components []string
	if IsAbsolute(target) {
		components = nil
	} else {
		components = Split(base)
	}

	for _, c := range Split(target) {
		switch c {
		case ".":
			// no-op
		case "..":
			if len(components) > 0 {
				components = components[:len(components)-1]
			}
		default:
			components = append(components, c)
		}
	}

	return Join(components...)
}
