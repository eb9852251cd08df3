package hyperscan

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	hs "github.com/flier/gohs/hyperscan"
	"github.com/rs/zerolog"
)

// DbCache keeps compiled Hyperscan databases between runs. Compiling the patterns of a large rule set is slow.
type DbCache interface {
	key(patterns []*hs.Pattern) string
	load(key string) hs.BlockDatabase
	save(key string, db hs.BlockDatabase)
}

type fileDbCache struct {
	logger zerolog.Logger
	fs     CacheFilesystem
}

// NewDbCache creates a DbCache that keeps one file per pattern set. Cache problems are logged and otherwise ignored, since the patterns can always be compiled again.
func NewDbCache(logger zerolog.Logger, fs CacheFilesystem) DbCache {
	return &fileDbCache{logger: logger, fs: fs}
}

// key hashes the patterns with the Hyperscan version, because a serialized database only loads into the version that built it.
func (c *fileDbCache) key(patterns []*hs.Pattern) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\n", hs.Version())
	for _, p := range patterns {
		fmt.Fprintf(h, "%d\x00%d\x00%s\n", p.Id, p.Flags, string(p.Expression))
	}
	return hex.EncodeToString(h.Sum(nil)) + ".hsdb"
}

func (c *fileDbCache) load(key string) hs.BlockDatabase {
	bb, err := c.fs.ReadFile(filepath.Join(c.fs.Dir(), key))
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug().Str("key", key).Msg("Hyperscan database cache miss")
		return nil
	}
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Failed to read cached Hyperscan database")
		return nil
	}

	db, err := hs.UnmarshalBlockDatabase(bb)
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Discarding cached Hyperscan database that could not be loaded")
		return nil
	}

	return db
}

func (c *fileDbCache) save(key string, db hs.BlockDatabase) {
	bb, err := db.Marshal()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to serialize Hyperscan database")
		return
	}

	if err = c.fs.MkdirAll(c.fs.Dir()); err == nil {
		err = c.fs.WriteFile(filepath.Join(c.fs.Dir(), key), bb)
	}
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Failed to cache Hyperscan database")
	}
}

// CacheFilesystem is the file system the cache persists to. Needed for mocking.
type CacheFilesystem interface {
	Dir() string
	ReadFile(name string) ([]byte, error)

	// WriteFile replaces the file in one step, so concurrent readers never see a partial database.
	WriteFile(name string, data []byte) error
	MkdirAll(dir string) error
}

type cacheFilesystemImpl struct {
	dir string
}

// NewCacheFileSystem creates a CacheFilesystem that keeps databases in the given directory of the real file system.
func NewCacheFileSystem(dir string) CacheFilesystem {
	return &cacheFilesystemImpl{dir: dir}
}

func (c *cacheFilesystemImpl) Dir() string {
	return c.dir
}

func (c *cacheFilesystemImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (c *cacheFilesystemImpl) WriteFile(name string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return
	}
	if err = f.Close(); err != nil {
		return
	}
	err = os.Rename(f.Name(), name)
	return
}

func (c *cacheFilesystemImpl) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}
