package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
)

// 内置策略键名。
const (
	KeyNetworkFirst         = "network-first"
	KeyCacheFirst           = "cache-first"
	KeyStaleWhileRevalidate = "stale-while-revalidate"
)

// FetchFunc 执行一次实时上游抓取，并把响应物化为可落盘的快照。
// 实现方负责缓冲正文；返回 error 表示网络层面失败（含无法建立连接）。
type FetchFunc func(ctx context.Context) (*cache.Entry, error)

// Request 聚合一次裁决所需的全部输入：目标存储、缓存键与抓取能力。
type Request struct {
	Store string
	Key   cache.Key
	Fetch FetchFunc
}

// Strategy 决定一次请求如何在缓存与网络之间裁决。
type Strategy interface {
	// Key 返回注册键名，供日志与诊断端输出。
	Key() string
	// Resolve 返回可交付调用方的快照；仅当缓存回退也不可用时返回错误。
	Resolve(ctx context.Context, req Request) (*cache.Entry, error)
}

// Constructor 以共享的存储管理器与 logger 构造策略实例。
type Constructor func(stores cache.Manager, logger *logrus.Logger) Strategy

var globalRegistry = newRegistry()

type registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func newRegistry() *registry {
	return &registry{constructors: make(map[string]Constructor)}
}

// Register 将策略构造函数加入全局注册表，重复键会返回错误。
func Register(key string, ctor Constructor) error {
	return globalRegistry.register(key, ctor)
}

// MustRegister 在注册失败时 panic，适合策略文件 init() 中调用。
func MustRegister(key string, ctor Constructor) {
	if err := Register(key, ctor); err != nil {
		panic(err)
	}
}

// New 按键名实例化策略，键未注册时返回 false。
func New(key string, stores cache.Manager, logger *logrus.Logger) (Strategy, bool) {
	return globalRegistry.build(key, stores, logger)
}

// Known 报告键名是否已注册，供配置校验使用。
func Known(key string) bool {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	_, ok := globalRegistry.constructors[normalizeKey(key)]
	return ok
}

// Keys 返回所有已注册策略的键名（排序后），供诊断与错误提示使用。
func Keys() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	keys := make([]string, 0, len(globalRegistry.constructors))
	for key := range globalRegistry.constructors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *registry) register(key string, ctor Constructor) error {
	normalized := normalizeKey(key)
	if normalized == "" {
		return errors.New("strategy key is required")
	}
	if ctor == nil {
		return errors.New("strategy constructor is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[normalized]; exists {
		return fmt.Errorf("strategy %s already registered", normalized)
	}
	r.constructors[normalized] = ctor
	return nil
}

func (r *registry) build(key string, stores cache.Manager, logger *logrus.Logger) (Strategy, bool) {
	r.mu.RLock()
	ctor, ok := r.constructors[normalizeKey(key)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ctor(stores, logger), true
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// isSuccess 判断响应是否属于可缓存的成功状态类。
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// shared 收拢策略对存储的读写封装：读故障降级为未命中，写故障记日志后吞掉。
type shared struct {
	stores cache.Manager
	logger *logrus.Logger
}

// lookup 读取缓存；ErrStorageUnavailable 降级为 ErrNotFound 并记一条告警。
func (s shared) lookup(ctx context.Context, req Request) (*cache.Entry, error) {
	entry, err := s.stores.Get(ctx, req.Store, req.Key)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, cache.ErrNotFound) {
		return nil, cache.ErrNotFound
	}
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action": "cache_get_failed",
		"store":  req.Store,
		"key":    req.Key.Canonical(),
	}).Warn("缓存读取失败，按未命中处理")
	return nil, cache.ErrNotFound
}

// storeIfSuccess 仅在成功状态类时写缓存，写失败绝不影响请求结果。
func (s shared) storeIfSuccess(ctx context.Context, req Request, entry *cache.Entry) {
	if entry == nil || !isSuccess(entry.Status) {
		return
	}
	if err := s.stores.Put(ctx, req.Store, req.Key, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_write_failed",
			"store":  req.Store,
			"key":    req.Key.Canonical(),
		}).Warn("缓存写入失败，结果仍正常返回")
	}
}
