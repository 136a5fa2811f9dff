package mapfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitFilesystem(t *testing.T) {
	fs, err := InitFilesystem(S3)
	assert.Nil(t, err)
	assert.NotNil(t, fs)
	assert.IsType(t, &S3FileSystem{}, fs)

	fs, err = InitFilesystem(Local)
	assert.Nil(t, err)
	assert.NotNil(t, fs)
	assert.IsType(t, &LocalFileSystem{}, fs)
}

func TestInferFilesystem(t *testing.T) {
	fs, err := InferFilesystem("s3://foo/bar.txt")
	assert.Nil(t, err)
	assert.NotNil(t, fs)
	assert.IsType(t, &S3FileSystem{}, fs)

	fs, err = InferFilesystem("./bar.txt")
	assert.Nil(t, err)
	assert.NotNil(t, fs)
	assert.IsType(t, &LocalFileSystem{}, fs)
}

func TestInferFilesystemType(t *testing.T) {
	assert.Equal(t, S3, InferFilesystemType("s3://bucket/key"))
	assert.Equal(t, Local, InferFilesystemType("/tmp/s3://x"))
	assert.Equal(t, Local, InferFilesystemType("data.csv"))
}

func TestFileSystemTypeString(t *testing.T) {
	assert.Equal(t, "local", Local.String())
	assert.Equal(t, "s3", S3.String())
	assert.Equal(t, "unknown", FileSystemType(7).String())
}
