// Package lifecycle implements the install → waiting → active → superseded
// state machine that owns store generations: install pre-warms the static
// store from the precache manifest (fail-fast), activation garbage-collects
// every store generation outside the current VersionSet. Activation is the
// only place stores are deleted.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/routing"
)

// State 是生命周期控制器的状态标签。
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

// ErrInstallFailed 是唯一的致命错误：安装失败阻止激活，上一代保持现役。
var ErrInstallFailed = errors.New("install failed")

// Fetcher 按根相对路径抓取上游资源并物化为快照。
type Fetcher func(ctx context.Context, path string) (*cache.Entry, error)

// Options 聚合控制器的全部依赖。
type Options struct {
	Stores cache.Manager
	Fetch  Fetcher
	Logger *logrus.Logger
	// Manifest 是安装阶段预热到 static 存储的路径清单，按声明顺序拉取。
	Manifest []string
	// Versions 是现役存储名集合，激活阶段之外的存储一律视为垃圾。
	Versions routing.VersionSet
	// StaticStore 是预热目标存储名，例如 static-v1。
	StaticStore string
}

// Controller 按 Installing -> Waiting -> Active -> Superseded 推进，
// 状态非法的转换返回错误。安装成功后立即请求晋升（skip-waiting 语义）：
// 版本化存储名保证旧客户端读不到新代次，无需等待其退出。
type Controller struct {
	stores      cache.Manager
	fetch       Fetcher
	logger      *logrus.Logger
	manifest    []string
	versions    routing.VersionSet
	staticStore string

	mu    sync.Mutex
	state State
}

// NewController 构造处于 Installing 状态的控制器。
func NewController(opts Options) (*Controller, error) {
	if opts.Stores == nil {
		return nil, errors.New("store manager is required")
	}
	if opts.Fetch == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.StaticStore == "" {
		return nil, errors.New("static store name is required")
	}
	if len(opts.Versions) == 0 {
		return nil, errors.New("version set is required")
	}

	return &Controller{
		stores:      opts.Stores,
		fetch:       opts.Fetch,
		logger:      opts.Logger,
		manifest:    opts.Manifest,
		versions:    opts.Versions,
		staticStore: opts.StaticStore,
		state:       StateInstalling,
	}, nil
}

// State 返回当前状态。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// VersionSet 返回现役存储名集合，供诊断端输出。
func (c *Controller) VersionSet() routing.VersionSet {
	return c.versions
}

// Install 每个构建执行一次：打开 static 存储并按清单顺序预热。
// 任何一条抓取或写入失败都使整个安装失败——清单很小且必须内部一致，
// 半温的 static 存储比没有更糟。
func (c *Controller) Install(ctx context.Context) error {
	if err := c.requireState(StateInstalling); err != nil {
		return err
	}

	if err := c.stores.Open(ctx, c.staticStore); err != nil {
		return c.failInstall(fmt.Errorf("open %s: %w", c.staticStore, err))
	}

	for _, path := range c.manifest {
		entry, err := c.fetch(ctx, path)
		if err != nil {
			return c.failInstall(fmt.Errorf("prewarm %s: %w", path, err))
		}
		if entry.Status < 200 || entry.Status >= 300 {
			return c.failInstall(fmt.Errorf("prewarm %s: upstream status %d", path, entry.Status))
		}
		key := cache.NewKey("GET", path)
		if err := c.stores.Put(ctx, c.staticStore, key, entry); err != nil {
			return c.failInstall(fmt.Errorf("prewarm %s: %w", path, err))
		}
	}

	c.setState(StateWaiting)
	c.logger.WithFields(logrus.Fields{
		"action":   "install",
		"store":    c.staticStore,
		"prewarms": len(c.manifest),
	}).Info("安装完成，请求立即晋升")
	return nil
}

// Activate 进入 Active 并回收现役集合之外的所有存储。删除是尽力而为：
// 单个存储删除失败只记日志，不阻塞晋升；与请求路径的并发由存储层的
// 单键原子操作兜底，飞行中的读至多表现为一次瞬时未命中。
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.requireState(StateWaiting); err != nil {
		return err
	}

	names, err := c.stores.StoreNames(ctx)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "activate",
		}).Warn("枚举存储失败，跳过本次回收")
		names = nil
	}

	var deleted []string
	for _, name := range names {
		if c.versions.Contains(name) {
			continue
		}
		if err := c.stores.DeleteStore(ctx, name); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "activate",
				"store":  name,
			}).Warn("旧存储删除失败")
			continue
		}
		deleted = append(deleted, name)
	}

	c.setState(StateActive)
	c.logger.WithFields(logrus.Fields{
		"action":  "activate",
		"current": c.versions.Names(),
		"deleted": deleted,
	}).Info("激活完成，旧代次已回收")
	return nil
}

// Supersede 标记控制器被新代次接管：不再接收新请求，飞行中的工作自然收尾。
func (c *Controller) Supersede() error {
	if err := c.requireState(StateActive); err != nil {
		return err
	}
	c.setState(StateSuperseded)
	c.logger.WithFields(logrus.Fields{
		"action": "supersede",
	}).Info("控制器已被新代次接管")
	return nil
}

func (c *Controller) failInstall(cause error) error {
	c.logger.WithError(cause).WithFields(logrus.Fields{
		"action": "install",
		"store":  c.staticStore,
	}).Error("安装失败，阻止激活")
	return fmt.Errorf("%w: %v", ErrInstallFailed, cause)
}

func (c *Controller) requireState(expected State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != expected {
		return fmt.Errorf("invalid transition: state is %s, expected %s", c.state, expected)
	}
	return nil
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
}
