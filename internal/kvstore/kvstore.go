package kvstore

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store is a durable key/value store backed by one JSON file per value
// and an index file mapping logical keys to storage paths.
type Store struct {
	dir       string
	indexPath string
	mu        sync.Mutex
	index     map[string]string // logical key -> value file path
	logger    *zap.Logger
}

// Open creates the store directory if needed and loads the index.
// A missing or corrupt index starts empty rather than failing open.
func Open(dir, indexName string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		indexPath: filepath.Join(dir, indexName),
		index:     make(map[string]string),
		logger:    logger,
	}

	data, err := os.ReadFile(s.indexPath)
	if err == nil {
		if uerr := json.Unmarshal(data, &s.index); uerr != nil {
			logger.Warn("could not parse store index, starting empty",
				zap.String("path", s.indexPath), zap.Error(uerr))
			s.index = make(map[string]string)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read store index: %w", err)
	}
	return s, nil
}

// Put writes value as JSON under key and updates the index.
func (s *Store) Put(key string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal value %s: %w", key, err)
	}

	path := filepath.Join(s.dir, hashKey(key)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write value %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[key] = path
	return s.saveIndexLocked()
}

// Get unmarshals the stored value for key into out.
// Returns false when the key is unknown or the value file is gone.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	path, ok := s.index[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read value %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal value %s: %w", key, err)
	}
	return true, nil
}

// Keys returns all logical keys with the given prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.index {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of indexed keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *Store) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store index: %w", err)
	}
	if err := os.WriteFile(s.indexPath, data, 0o644); err != nil {
		return fmt.Errorf("write store index: %w", err)
	}
	return nil
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
