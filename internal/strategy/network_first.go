package strategy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
)

func init() {
	MustRegister(KeyNetworkFirst, func(stores cache.Manager, logger *logrus.Logger) Strategy {
		return &networkFirst{shared{stores: stores, logger: logger}}
	})
}

// networkFirst 优先实时抓取，保证有连接时的新鲜度；网络失败时回退缓存，
// 无缓存可回退才把原始失败传给调用方。
type networkFirst struct {
	shared
}

func (s *networkFirst) Key() string {
	return KeyNetworkFirst
}

func (s *networkFirst) Resolve(ctx context.Context, req Request) (*cache.Entry, error) {
	fresh, fetchErr := req.Fetch(ctx)
	if fetchErr == nil {
		s.storeIfSuccess(ctx, req, fresh)
		return fresh, nil
	}

	cached, lookupErr := s.lookup(ctx, req)
	if lookupErr == nil {
		s.logger.WithFields(logrus.Fields{
			"action": "network_first_fallback",
			"store":  req.Store,
			"key":    req.Key.Canonical(),
		}).Info("上游抓取失败，改用缓存条目")
		return cached, nil
	}

	// 缓存也未命中，传播原始网络失败。
	return nil, fetchErr
}
