package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Manager 负责管理命名的带版本缓存存储。磁盘布局遵循：
//
//	<StoragePath>/<store>/<digest>.body       # 响应正文
//	<StoragePath>/<store>/<digest>.meta.json  # 状态码/头部/写入时间
//
// 存储名形如 `{purpose}-{version}`，例如 static-v1、games-cache-v1。
type Manager interface {
	// Open 幂等地创建存储目录，首次写入前调用。
	Open(ctx context.Context, store string) error

	// Get 返回指定键的快照。不存在返回 ErrNotFound，
	// 其余底层故障一律包装为 ErrStorageUnavailable。
	Get(ctx context.Context, store string, key Key) (*Entry, error)

	// Put 整体替换指定键的快照。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。
	Put(ctx context.Context, store string, key Key, entry *Entry) error

	// DeleteStore 删除整个存储及其全部条目，仅供激活阶段回收旧代次。
	DeleteStore(ctx context.Context, store string) error

	// StoreNames 枚举当前存在的存储名，供激活阶段与诊断端使用。
	StoreNames(ctx context.Context) ([]string, error)
}

// Entry 是一次上游响应的不可变快照，写入后不再原地修改，替换总是整体进行。
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// ErrNotFound 表示缓存不存在，是正常的控制流信号而非故障。
var ErrNotFound = errors.New("cache entry not found")

// ErrStorageUnavailable 表示缓存读写因底层存储故障失败（如磁盘满）。
// 策略层读路径将其降级为未命中，写路径记日志后丢弃。
var ErrStorageUnavailable = errors.New("cache storage unavailable")
