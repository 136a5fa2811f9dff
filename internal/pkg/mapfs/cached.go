package mapfs

import (
	"io"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultStatCacheSize is the number of Stat results a cached filesystem keeps.
const DefaultStatCacheSize = 128

// cachedFileSystem memoizes Stat results of the wrapped FileSystem.
// Opening or writing a path evicts its entry, so a cached size never
// outlives the next read of the file.
type cachedFileSystem struct {
	FileSystem
	stats *lru.Cache
}

// NewCachedFileSystem wraps fs so that repeated Stat calls for the same path
// are served from an LRU cache of the given size.
func NewCachedFileSystem(fs FileSystem, size int) (FileSystem, error) {
	if size <= 0 {
		size = DefaultStatCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cachedFileSystem{FileSystem: fs, stats: cache}, nil
}

func (c *cachedFileSystem) Stat(filePath string) (FileInfo, error) {
	if cached, ok := c.stats.Get(filePath); ok {
		return cached.(FileInfo), nil
	}

	fInfo, err := c.FileSystem.Stat(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	c.stats.Add(filePath, fInfo)
	return fInfo, nil
}

func (c *cachedFileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	c.stats.Remove(filePath)
	return c.FileSystem.OpenWriter(filePath)
}

func (c *cachedFileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	c.stats.Remove(filePath)
	return c.FileSystem.OpenReader(filePath, startAt)
}
