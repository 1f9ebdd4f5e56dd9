package vfs

import (
	"regexp"
	"strings"
)

// CompileWildcard translates a DOS-style wildcard pattern ('*' matches any
// run of characters including '.', '?' matches exactly one non-'.'
// character) into an anchored, case-insensitive regular expression. Per the
// ECMA-119 convention, a pattern with no '.' is treated as having an empty
// extension: it only matches names without a '.' (a bare trailing '.' is
// allowed), so "README" matches "README" but not "README.TXT".
func CompileWildcard(pattern string) (*regexp.Regexp, error) {
	noDot := !strings.Contains(pattern, ".")

	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			if noDot {
				sb.WriteString("[^.]*")
			} else {
				sb.WriteString(".*")
			}
		case '?':
			sb.WriteString("[^.]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if noDot {
		sb.WriteString(`\.?`)
	}
	sb.WriteString("$")

	return regexp.Compile(sb.String())
}

// EnumerateWildcard lists the entries of dir (and, if recursive, every
// descendant directory depth-first) whose FileName matches re. Directories
// are always descended into when recursive is set, regardless of whether
// the directory's own name matches. sink receives the path of the directory
// holding e: "" for dir itself, and a Separator-rooted path such as
// "\SUB\LEAF" for a descendant.
func EnumerateWildcard(ctx Context, dir Directory, re *regexp.Regexp, recursive bool, sink func(dirPath string, e Entry)) error {
	return enumerateWildcard(ctx, dir, "", re, recursive, sink)
}

func enumerateWildcard(ctx Context, dir Directory, dirPath string, re *regexp.Regexp, recursive bool, sink func(string, Entry)) error {
	for _, e := range dir.AllEntries() {
		if re.MatchString(e.FileName()) {
			sink(dirPath, e)
		}

		if recursive && e.IsDirectory() && !e.IsSymlink() {
			child, err := ctx.Materialize(e)
			if err != nil {
				return err
			}

			childPath := dirPath + string(Separator) + e.FileName()
			if err := enumerateWildcard(ctx, child, childPath, re, recursive, sink); err != nil {
				return err
			}
		}
	}

	return nil
}
