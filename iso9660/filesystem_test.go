package iso9660

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fsRootLBA = 50
	fsSubLBA  = 51
	fsAFile   = 52
	fsBFile   = 53
)

func buildNestedImage() *imageBuilder {
	b := newImageBuilder()

	b.writeAt(fsAFile, 0, []byte("aaaa"))
	b.writeAt(fsBFile, 0, []byte("bbbbbb"))

	b.writeDirectory(fsSubLBA, fsSubLBA, SectorSize, fsRootLBA, SectorSize, nil, []dirRecordEntry{
		{identifier: "B.TXT;1", extentLBA: fsBFile, dataLength: 6},
	})
	b.writeDirectory(fsRootLBA, fsRootLBA, SectorSize, fsRootLBA, SectorSize, nil, []dirRecordEntry{
		{identifier: "A.TXT;1", extentLBA: fsAFile, dataLength: 4},
		{identifier: "SUB", extentLBA: fsSubLBA, dataLength: SectorSize, isDir: true},
	})

	b.writePrimaryDescriptor(16, fsRootLBA, SectorSize, "NESTVOL")
	b.writeTerminator(17)

	return b
}

func TestGetFilesRecursive(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	files, err := r.GetFiles(`\`, "", true)
	require.NoError(t, err)
	assert.Contains(t, files, "A.TXT")
	assert.Contains(t, files, `SUB\B.TXT`)
}

func TestGetFilesNonRecursiveExcludesChildren(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	files, err := r.GetFiles(`\`, "", false)
	require.NoError(t, err)
	assert.Contains(t, files, "A.TXT")
	assert.NotContains(t, files, `SUB\B.TXT`)
}

func TestGetDirectories(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	dirs, err := r.GetDirectories(`\`, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"SUB"}, dirs)
}

func TestGetFilesWildcardPattern(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	files, err := r.GetFiles(`\`, "A.*", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.TXT"}, files)

	none, err := r.GetFiles(`\`, "Z.*", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEnumerationIsIdempotent(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	first, err := r.GetFiles(`\`, "", true)
	require.NoError(t, err)
	second, err := r.GetFiles(`\`, "", true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetFilesOnSubdirectoryIsRootRelative(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	files, err := r.GetFiles(`\SUB`, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{`SUB\B.TXT`}, files)

	for _, f := range files {
		assert.True(t, r.FileExists(`\`+f))
	}
}

func TestGetFilesOnFilePathFails(t *testing.T) {
	b := buildNestedImage()
	r, err := Open(b.readerAt())
	require.NoError(t, err)

	_, err = r.GetFiles(`\A.TXT;1`, "", false)
	assert.Error(t, err)
}
