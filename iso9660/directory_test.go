package iso9660

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rrRootLBA = 30
	rrFileLBA = 31
	rrLinkLBA = 32
)

// buildRockRidgeImage builds a primary-only disc whose root "." record
// advertises SP+ER, and whose child carries an NM-overridden name plus a
// PX entry (spec.md S2).
func buildRockRidgeImage() *imageBuilder {
	b := newImageBuilder()

	selfSystemUse := append(spEntryBytes(), erEntryBytes("RRIP_1991A")...)

	makefileSystemUse := append(pxEntryBytes(0100644), nmEntryBytes(0, "Makefile.am")...)

	linkSystemUse := append(pxEntryBytes(0120777), slEntryBytes(0, slComponentBytes(0, "TARGET.TXT"))...)

	b.writeDirectory(rrRootLBA, rrRootLBA, SectorSize, rrRootLBA, SectorSize, selfSystemUse, []dirRecordEntry{
		{identifier: "MAKEFILE.AM;1", extentLBA: rrFileLBA, dataLength: 5, systemUse: makefileSystemUse},
		{identifier: "LINK;1", extentLBA: rrLinkLBA, dataLength: 0, systemUse: linkSystemUse},
	})

	b.writeAt(rrFileLBA, 0, []byte("abcde"))

	b.writePrimaryDescriptor(16, rrRootLBA, SectorSize, "RRVOL")
	b.writeTerminator(17)

	return b
}

func TestRockRidgeNameOverride(t *testing.T) {
	b := buildRockRidgeImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)
	assert.Equal(t, "RockRidge", r.ctx.activeVariant.String())

	files, err := r.GetFiles(`\`, "", false)
	require.NoError(t, err)
	assert.Contains(t, files, "Makefile.am")
	assert.NotContains(t, files, "MAKEFILE.AM")
}

func TestRockRidgeSymlink(t *testing.T) {
	b := buildRockRidgeImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	root, err := r.Root()
	require.NoError(t, err)
	dir, err := r.ctx.Materialize(root)
	require.NoError(t, err)

	entry, ok := dir.GetEntryByName("link")
	require.True(t, ok)
	assert.True(t, entry.IsSymlink())

	// The SL entry carries no root component, so the stored target stays
	// relative; vfs.Resolve is what turns it into an absolute path, using
	// the symlink's own directory as the base.
	target, err := r.ctx.ReadLink(entry)
	require.NoError(t, err)
	assert.Equal(t, `TARGET.TXT`, target)
}

// buildRelativeSymlinkImage puts a symlink and its target side by side in a
// subdirectory, so resolving the symlink from the filesystem root only
// succeeds if the relative target is resolved against the symlink's own
// directory rather than against the root.
func buildRelativeSymlinkImage() *imageBuilder {
	b := newImageBuilder()

	const (
		root = 50
		sub  = 51
		file = 52
		link = 53
	)

	selfSystemUse := append(spEntryBytes(), erEntryBytes("RRIP_1991A")...)

	b.writeDirectory(root, root, SectorSize, root, SectorSize, selfSystemUse, []dirRecordEntry{
		{identifier: "SUB", extentLBA: sub, dataLength: SectorSize, isDir: true},
	})

	linkSystemUse := append(pxEntryBytes(0120777), slEntryBytes(0, slComponentBytes(0, "TARGET.TXT"))...)
	b.writeDirectory(sub, sub, SectorSize, root, SectorSize, nil, []dirRecordEntry{
		{identifier: "TARGET.TXT;1", extentLBA: file, dataLength: 3},
		{identifier: "LINK;1", extentLBA: link, dataLength: 0, systemUse: linkSystemUse},
	})

	b.writeAt(file, 0, []byte("hi!"))

	b.writePrimaryDescriptor(16, root, SectorSize, "RELVOL")
	b.writeTerminator(17)

	return b
}

func TestRockRidgeRelativeSymlinkResolvesAgainstOwnDirectory(t *testing.T) {
	b := buildRelativeSymlinkImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	data, err := io.ReadAll(mustOpen(t, r, `\SUB\LINK`))
	require.NoError(t, err)
	assert.Equal(t, "hi!", string(data))
}

func mustOpen(t *testing.T, r *Reader, path string) io.Reader {
	t.Helper()
	f, err := r.OpenFile(path)
	require.NoError(t, err)
	return f
}

// buildDeviceImage builds a primary-only disc whose only child is a Rock
// Ridge character-special device entry (PX type bits plus a PN record).
func buildDeviceImage() *imageBuilder {
	b := newImageBuilder()

	selfSystemUse := append(spEntryBytes(), erEntryBytes("RRIP_1991A")...)
	devSystemUse := append(pxEntryBytes(0020644), pnEntryBytes(5, 1)...)

	b.writeDirectory(rrRootLBA, rrRootLBA, SectorSize, rrRootLBA, SectorSize, selfSystemUse, []dirRecordEntry{
		{identifier: "TTY;1", extentLBA: rrFileLBA, dataLength: 0, systemUse: devSystemUse},
	})

	b.writePrimaryDescriptor(16, rrRootLBA, SectorSize, "DEVVOL")
	b.writeTerminator(17)

	return b
}

func TestRockRidgeDevice(t *testing.T) {
	b := buildDeviceImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	root, err := r.Root()
	require.NoError(t, err)
	dir, err := r.ctx.Materialize(root)
	require.NoError(t, err)

	entry, ok := dir.GetEntryByName("tty")
	require.True(t, ok)

	de, ok := entry.(*dirEntry)
	require.True(t, ok)
	assert.Equal(t, fs.ModeDevice|fs.ModeCharDevice, de.Type())

	dev, err := de.GetDevice()
	require.NoError(t, err)
	assert.EqualValues(t, 5, dev.Major())
	assert.EqualValues(t, 1, dev.Minor())
}

func TestMultiExtentFileGrouping(t *testing.T) {
	b := newImageBuilder()

	part1 := []byte("0123456789")
	part2 := []byte("ABCDE")
	b.writeAt(41, 0, part1)
	b.writeAt(42, 0, part2)

	b.writeDirectory(40, 40, SectorSize, 40, SectorSize, nil, []dirRecordEntry{
		{identifier: "BIG.BIN;1", extentLBA: 41, dataLength: uint32(len(part1)), notFinalExtent: true},
		{identifier: "BIG.BIN;1", extentLBA: 42, dataLength: uint32(len(part2))},
	})

	b.writePrimaryDescriptor(16, 40, SectorSize, "MULTIVOL")
	b.writeTerminator(17)

	r, err := Open(b.readerAt())
	require.NoError(t, err)

	length, err := r.GetFileLength(`\BIG.BIN;1`)
	require.NoError(t, err)
	assert.EqualValues(t, len(part1)+len(part2), length)

	ranges, err := r.PathToClusters(`\BIG.BIN;1`)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.EqualValues(t, 41, ranges[0].LBA)
	assert.EqualValues(t, len(part1), ranges[0].Count)
	assert.EqualValues(t, 42, ranges[1].LBA)
	assert.EqualValues(t, len(part2), ranges[1].Count)
}
