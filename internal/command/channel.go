// Package command receives asynchronous one-way messages from the host
// application. Messages carry no response path: failures are logged and
// swallowed, unrecognized tags are ignored as forward-compatible no-ops. The
// only recognized tag precaches a game's metadata entry before normal traffic
// requests it.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
)

// TypePrecacheGame 是当前唯一识别的消息标签。
const TypePrecacheGame = "PRECACHE_GAME"

// Message 是宿主投递的带标签消息，无应答槽位。
type Message struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

// Fetcher 按根相对路径抓取上游资源并物化为快照。
type Fetcher func(ctx context.Context, path string) (*cache.Entry, error)

// Options 聚合命令通道的全部依赖。
type Options struct {
	Stores cache.Manager
	Fetch  Fetcher
	Logger *logrus.Logger
	// GamesStore 是预热目标存储名，例如 games-cache-v1。
	GamesStore string
	// Buffer 是消息缓冲大小，投递溢出时消息被丢弃并记日志。
	Buffer int
}

// Channel 是单向消息队列：宿主 Post，后台 Run 消费，没有返回路径。
type Channel struct {
	msgs       chan Message
	stores     cache.Manager
	fetch      Fetcher
	logger     *logrus.Logger
	gamesStore string
}

// NewChannel 构造命令通道。
func NewChannel(opts Options) (*Channel, error) {
	if opts.Stores == nil {
		return nil, fmt.Errorf("store manager is required")
	}
	if opts.Fetch == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.GamesStore == "" {
		return nil, fmt.Errorf("games store name is required")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 32
	}
	return &Channel{
		msgs:       make(chan Message, buffer),
		stores:     opts.Stores,
		fetch:      opts.Fetch,
		logger:     opts.Logger,
		gamesStore: opts.GamesStore,
	}, nil
}

// Post 非阻塞投递；缓冲已满时丢弃消息并记日志，返回 false。
// 投递方永远不等待处理结果。
func (c *Channel) Post(msg Message) bool {
	select {
	case c.msgs <- msg:
		return true
	default:
		c.logger.WithFields(logrus.Fields{
			"action": "command_dropped",
			"type":   msg.Type,
		}).Warn("命令缓冲已满，消息被丢弃")
		return false
	}
}

// Run 消费消息直到 ctx 结束，通常在独立 goroutine 中运行。
func (c *Channel) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.msgs:
			c.handle(ctx, msg)
		}
	}
}

// MetaPath 根据游戏标识构造元数据抓取路径。
func MetaPath(gameID string) string {
	return "/api/games/" + gameID + "/meta"
}

// handle 处理单条消息。所有失败止于此处，绝不向任何调用方传播。
func (c *Channel) handle(ctx context.Context, msg Message) {
	if msg.Type != TypePrecacheGame {
		// 未识别的标签按前向兼容忽略。
		c.logger.WithFields(logrus.Fields{
			"action": "command_ignored",
			"type":   msg.Type,
		}).Debug("忽略未识别的命令标签")
		return
	}

	gameID := strings.TrimSpace(msg.GameID)
	if gameID == "" {
		c.logger.WithFields(logrus.Fields{
			"action": "precache",
		}).Warn("缺少 gameId，忽略预热命令")
		return
	}

	path := MetaPath(gameID)
	fields := logrus.Fields{
		"action":  "precache",
		"game_id": gameID,
		"store":   c.gamesStore,
	}

	entry, err := c.fetch(ctx, path)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("预热抓取失败")
		return
	}
	if entry.Status < 200 || entry.Status >= 300 {
		fields["upstream_status"] = entry.Status
		c.logger.WithFields(fields).Warn("预热响应非成功状态，跳过写入")
		return
	}

	key := cache.NewKey("GET", path)
	if err := c.stores.Put(ctx, c.gamesStore, key, entry); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("预热写入失败")
		return
	}
	c.logger.WithFields(fields).Info("预热完成")
}
