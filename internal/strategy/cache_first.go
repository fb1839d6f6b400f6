package strategy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
)

func init() {
	MustRegister(KeyCacheFirst, func(stores cache.Manager, logger *logrus.Logger) Strategy {
		return &cacheFirst{shared{stores: stores, logger: logger}}
	})
}

// cacheFirst 命中即返回、完全不触网，延迟最低；仅未命中时抓取上游，
// 抓取失败时没有条目可回退，直接传播失败。
type cacheFirst struct {
	shared
}

func (s *cacheFirst) Key() string {
	return KeyCacheFirst
}

func (s *cacheFirst) Resolve(ctx context.Context, req Request) (*cache.Entry, error) {
	cached, lookupErr := s.lookup(ctx, req)
	if lookupErr == nil {
		return cached, nil
	}

	fresh, fetchErr := req.Fetch(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}
	s.storeIfSuccess(ctx, req, fresh)
	return fresh, nil
}
