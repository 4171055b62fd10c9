// Package staging keeps downloaded session documents until the loader reads
// them. Documents live on the local disk or in Redis.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/redisclient"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidName = errors.New("invalid document name")
)

// DocumentStore is the storage collaborator of the pipeline.
type DocumentStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Check(ctx context.Context) error
	Close() error
}

// Open returns a RedisStore when redisURL is set and a FileStore on dir otherwise.
func Open(dir, redisURL string, log *zap.Logger) (DocumentStore, error) {
	log = logger.Or(log)
	if redisURL != "" {
		c, err := redisclient.New(redisURL)
		if err != nil {
			return nil, err
		}
		log.Info("staging documents in redis")
		return NewRedisStore(c, DefaultKeyPrefix, 0), nil
	}
	log.Info("staging documents on disk", zap.String("dir", dir))
	return NewFileStore(dir), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileStore keeps each document as a file in one directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Put writes data through a temporary file so readers never see a partial document.
func (s *FileStore) Put(_ context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}

func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// List returns the staged XML documents, sorted by name.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Check makes sure the staging directory exists.
func (s *FileStore) Check(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("staging dir unavailable: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// DefaultKeyPrefix namespaces staging keys in a shared Redis.
const DefaultKeyPrefix = "fin_quotes:staging:"

// RedisStore keeps documents as Redis strings plus a set of their names.
type RedisStore struct {
	client *redisclient.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redisclient.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) docKey(name string) string { return s.prefix + "doc:" + name }
func (s *RedisStore) indexKey() string         { return s.prefix + "index" }

func (s *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.docKey(name), data, s.ttl); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), name); err != nil {
		return fmt.Errorf("failed to index %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.docKey(name))
	if errors.Is(err, redisclient.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// List returns the indexed names. Entries may outlive their document when a ttl is set.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.indexKey())
}

func (s *RedisStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
