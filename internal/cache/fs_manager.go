package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewManager 以 basePath 为根目录构建磁盘存储管理器，整个进程复用一份实例。
func NewManager(basePath string) (Manager, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fsManager{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fsManager 通过 entryLock 避免同一键并发写入，同时复用 basePath。
// 单键操作原子，跨键无顺序保证（后写覆盖）。
type fsManager struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryMeta 是 .meta.json 侧车文件的落盘结构。
type entryMeta struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	StoredAt time.Time   `json:"stored_at"`
	Size     int64       `json:"size_bytes"`
}

func (m *fsManager) Open(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := m.storePath(store)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (m *fsManager) Get(ctx context.Context, store string, key Key) (*Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	metaPath, bodyPath, err := m.entryPaths(store, key)
	if err != nil {
		return nil, err
	}

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var meta entryMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode meta: %v", ErrStorageUnavailable, err)
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// 条目被并发删除时表现为一次未命中，而非错误。
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return &Entry{
		Status:   meta.Status,
		Header:   meta.Header,
		Body:     body,
		StoredAt: meta.StoredAt,
	}, nil
}

func (m *fsManager) Put(ctx context.Context, store string, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("entry required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.lockEntry(store, key)
	defer unlock()

	metaPath, bodyPath, err := m.entryPaths(store, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	if err := writeAtomic(bodyPath, entry.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	meta := entryMeta{
		Key:      key.Canonical(),
		Status:   entry.Status,
		Header:   entry.Header,
		StoredAt: storedAt,
		Size:     int64(len(entry.Body)),
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: encode meta: %v", ErrStorageUnavailable, err)
	}
	if err := writeAtomic(metaPath, rawMeta); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (m *fsManager) DeleteStore(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := m.storePath(store)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (m *fsManager) StoreNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var names []string
	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			names = append(names, dirEntry.Name())
		}
	}
	return names, nil
}

// writeAtomic 通过临时文件 + rename 写入，失败时清理临时文件。
func writeAtomic(target string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (m *fsManager) lockEntry(store string, key Key) func() {
	lockKey := store + "::" + key.digest()
	m.mu.Lock()
	lock := m.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		m.locks[lockKey] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		m.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.locks, lockKey)
		}
		m.mu.Unlock()
	}
}

func (m *fsManager) storePath(store string) (string, error) {
	if store == "" {
		return "", errors.New("store name required")
	}
	if strings.ContainsAny(store, "/\\") || store == "." || store == ".." {
		return "", fmt.Errorf("invalid store name %q", store)
	}
	return filepath.Join(m.basePath, store), nil
}

func (m *fsManager) entryPaths(store string, key Key) (metaPath, bodyPath string, err error) {
	dir, err := m.storePath(store)
	if err != nil {
		return "", "", err
	}
	digest := key.digest()
	return filepath.Join(dir, digest+".meta.json"), filepath.Join(dir, digest+".body"), nil
}
