package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Entry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type Store[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	Key(params ...interface{}) string
}

// FileCache keeps one JSON document per key in dir. Entries older than ttl,
// or whose checksum does not match, are reported as misses. A zero ttl never
// expires.
type FileCache[T any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache[T any](dir string, ttl time.Duration) *FileCache[T] {
	return &FileCache[T]{dir: dir, ttl: ttl, now: time.Now}
}

func (fc *FileCache[T]) Key(params ...interface{}) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if entry.Checksum != checksum(entry.Data) {
		return zero, false
	}
	if fc.ttl > 0 && fc.now().Sub(entry.CreatedAt) > fc.ttl {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entry := Entry[T]{
		Data:      data,
		CreatedAt: fc.now(),
		Checksum:  checksum(data),
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

// Delete drops an entry. Missing entries are not an error.
func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func checksum(data any) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:])
}
