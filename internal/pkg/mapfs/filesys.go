package mapfs

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

func (t FileSystemType) String() string {
	switch t {
	case Local:
		return "local"
	case S3:
		return "s3"
	}
	return "unknown"
}

// FileSystem provides the file backend for mapper runs.
// Input data is read from a file system and results may be written back to one.
// This is abstracted to allow remote filesystems like S3 to be supported.
type FileSystem interface {
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem intializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) (FileSystem, error) {
	var fs FileSystem
	switch fsType {
	case S3:
		fs = &S3FileSystem{}
	default:
		fs = &LocalFileSystem{}
	}

	if err := fs.Init(); err != nil {
		log.Errorf("Could not initialize %s filesystem: %s", fsType, err)
		return nil, err
	}
	return fs, nil
}

// InferFilesystemType determines the filesystem type a location refers to
func InferFilesystemType(location string) FileSystemType {
	if strings.HasPrefix(location, "s3://") {
		return S3
	}
	return Local
}

// InferFilesystem initializes the filesystem that location refers to
func InferFilesystem(location string) (FileSystem, error) {
	return InitFilesystem(InferFilesystemType(location))
}
