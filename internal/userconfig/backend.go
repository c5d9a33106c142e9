package userconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound reports that no configuration has been persisted yet.
var ErrNotFound = errors.New("userconfig: not found")

// Backend reads and writes the serialized configuration document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// FileName is the configuration file inside the data directory.
const FileName = "config.json"

// FileBackend stores the document in a single file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file location.
func (b *FileBackend) Path() string {
	return b.path
}

// Read returns the file contents, or ErrNotFound when it does not exist.
func (b *FileBackend) Read(context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userconfig: read %s: %w", b.path, err)
	}
	return data, nil
}

// Write replaces the file atomically through a temp file in the same
// directory, creating the directory when needed.
func (b *FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("userconfig: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+"-*")
	if err != nil {
		return fmt.Errorf("userconfig: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("userconfig: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("userconfig: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("userconfig: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("userconfig: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return fmt.Errorf("userconfig: replace %s: %w", b.path, err)
	}
	return nil
}

// DefaultRedisKey is the key RedisBackend uses when none is configured.
const DefaultRedisKey = "smart-mirror:config"

// RedisBackend stores the document under a single Redis key.
type RedisBackend struct {
	client redis.Cmdable
	key    string
}

// NewRedisBackend returns a backend storing under key.
func NewRedisBackend(client redis.Cmdable, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

// Key returns the Redis key.
func (b *RedisBackend) Key() string {
	return b.key
}

// Read returns the stored document, or ErrNotFound when the key is unset.
func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userconfig: redis get %s: %w", b.key, err)
	}
	return data, nil
}

// Write stores data without expiry. SET replaces the value atomically.
func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("userconfig: redis set %s: %w", b.key, err)
	}
	return nil
}
