package strategy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
)

func init() {
	MustRegister(KeyStaleWhileRevalidate, func(stores cache.Manager, logger *logrus.Logger) Strategy {
		return &staleWhileRevalidate{shared: shared{stores: stores, logger: logger}}
	})
}

// staleWhileRevalidate 命中时立刻返回旧值，同时在后台刷新存储条目；
// 未命中时调用方同步等待实时抓取。后台写入与并发前台写入之间采用
// 后写覆盖语义，不做键级互斥。
type staleWhileRevalidate struct {
	shared

	// inflight 跟踪后台刷新，便于测试与退出前的自然收尾。
	inflight sync.WaitGroup
}

func (s *staleWhileRevalidate) Key() string {
	return KeyStaleWhileRevalidate
}

func (s *staleWhileRevalidate) Resolve(ctx context.Context, req Request) (*cache.Entry, error) {
	cached, lookupErr := s.lookup(ctx, req)
	if lookupErr == nil {
		s.revalidate(req)
		return cached, nil
	}

	fresh, fetchErr := req.Fetch(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}
	s.storeIfSuccess(ctx, req, fresh)
	return fresh, nil
}

// revalidate 发起后台抓取并覆写存储条目。调用方永远不等待它，
// 失败仅记日志；宿主导航离开也不会强制取消（fire-and-forget）。
func (s *staleWhileRevalidate) revalidate(req Request) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		bg := context.Background()
		fresh, err := req.Fetch(bg)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "revalidate_failed",
				"store":  req.Store,
				"key":    req.Key.Canonical(),
			}).Info("后台刷新失败，保留现有条目")
			return
		}
		s.storeIfSuccess(bg, req, fresh)
	}()
}
